package chat

import (
	"fmt"
	"strings"
)

// systemInstruction is the persona given to the model on every reply turn.
// The analyst dossier is injected so answers can build on what is already
// known about the user.
const systemInstruction = `You are OSINT-MIND, an expert open-source intelligence analyst assistant.
You help investigators gather, correlate, and assess publicly available information.
Be precise and technical. Cite the reasoning behind every assessment you make.
When an image is supplied, analyse it for identifying details such as locations,
timestamps, logos, and metadata clues.
Never invent facts. When information is unverifiable, say so explicitly.

ANALYST DOSSIER
The following dossier describes the analyst you are assisting. Use it to tailor
depth and terminology, but do not recite it back to them.

%s`

// titlePromptFormat asks for a short session title from the opening message.
const titlePromptFormat = `Generate a technical 4-word title for the following investigation request. Output only the title, nothing else.

%s`

// refinePromptFormat asks the model to fold durable facts from one exchange
// into the existing dossier.
const refinePromptFormat = `You maintain a concise dossier about an OSINT analyst based on their conversations.

Current dossier:
%s

Latest exchange:
Analyst: %s
Assistant: %s

Update the dossier with any durable facts the exchange reveals about the analyst:
their skills, tooling, areas of interest, ongoing investigations, or preferences.
Keep it under 200 words, written in the third person. If the exchange reveals
nothing durable, return the current dossier verbatim. Output only the dossier text.`

func buildSystemInstruction(dossier string) string {
	return fmt.Sprintf(systemInstruction, dossier)
}

func buildTitlePrompt(firstMessage string) string {
	return fmt.Sprintf(titlePromptFormat, firstMessage)
}

func buildRefinePrompt(dossier, userText, replyText string) string {
	return fmt.Sprintf(refinePromptFormat, dossier, userText, replyText)
}

// cleanTitle strips the quoting and trailing punctuation models tend to wrap
// short answers in.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSuffix(title, ".")
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	return title
}
