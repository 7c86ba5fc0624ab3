package chat

import (
	"context"
	"log"

	"github.com/legacyosint/osint-chatbot/internal/models"
	"github.com/legacyosint/osint-chatbot/internal/provider"
)

// RefineDispatcher hands a completed exchange to the background dossier
// refinement machinery. Dispatch failures are the dispatcher's to report;
// the reply path never waits on them.
type RefineDispatcher interface {
	DispatchRefine(userID int64, userText, replyText string) error
}

// TurnResult is everything a completed reply turn produced.
type TurnResult struct {
	Reply        string
	Title        string // non-empty only when this turn renamed the session
	UserMessage  *models.Message
	ReplyMessage *models.Message
	Persisted    bool
}

// Orchestrator drives one reply turn end to end: validate, assemble, call the
// model, persist the exchange, title new sessions, and hand off refinement.
type Orchestrator struct {
	store     Store
	client    provider.Client
	assembler *Assembler
	refiner   RefineDispatcher
}

func NewOrchestrator(store Store, client provider.Client, assembler *Assembler, refiner RefineDispatcher) *Orchestrator {
	return &Orchestrator{
		store:     store,
		client:    client,
		assembler: assembler,
		refiner:   refiner,
	}
}

// Respond runs a single turn. The model reply is returned even when
// persistence fails afterwards; the caller can tell from Persisted whether
// the exchange made it to durable storage.
func (o *Orchestrator) Respond(ctx context.Context, userID, sessionID int64, text string, image []byte) (*TurnResult, error) {
	req, input, err := o.assembler.BuildTurn(ctx, userID, sessionID, text, image)
	if err != nil {
		return nil, err
	}

	reply, err := o.client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{Reply: reply, Persisted: true}

	userMsg, err := o.store.AppendMessage(ctx, userID, sessionID, models.SenderUser, input.Text, input.Attachment)
	if err != nil {
		log.Printf("chat: user message for session %d not persisted: %v", sessionID, err)
		result.Persisted = false
	} else {
		result.UserMessage = userMsg
		replyMsg, err := o.store.AppendMessage(ctx, userID, sessionID, models.SenderAssistant, reply, "")
		if err != nil {
			log.Printf("chat: assistant reply for session %d not persisted: %v", sessionID, err)
			result.Persisted = false
		} else {
			result.ReplyMessage = replyMsg
		}
	}

	if input.PriorTurns == 0 {
		result.Title = o.generateTitle(ctx, userID, sessionID, input.Text)
	}

	if o.refiner != nil {
		if err := o.refiner.DispatchRefine(userID, input.Text, reply); err != nil {
			log.Printf("chat: dossier refinement for user %d not scheduled: %v", userID, err)
		}
	}
	return result, nil
}

// generateTitle names a session after its opening exchange. Title failures
// are logged and swallowed; the session keeps its default name.
func (o *Orchestrator) generateTitle(ctx context.Context, userID, sessionID int64, firstMessage string) string {
	if firstMessage == "" {
		firstMessage = "image analysis request"
	}
	req := provider.Request{
		Contents: []provider.Content{{
			Role:  provider.RoleUser,
			Parts: []provider.Part{{Text: buildTitlePrompt(firstMessage)}},
		}},
		Temperature:     defaultTemperature,
		MaxOutputTokens: 64,
	}
	raw, err := o.client.Generate(ctx, req)
	if err != nil {
		log.Printf("chat: title generation for session %d failed: %v", sessionID, err)
		return ""
	}
	title := cleanTitle(raw)
	if title == "" {
		return ""
	}
	if err := o.store.RenameSession(ctx, userID, sessionID, title); err != nil {
		log.Printf("chat: title for session %d not saved: %v", sessionID, err)
		return ""
	}
	return title
}
