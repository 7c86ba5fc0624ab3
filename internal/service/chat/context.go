package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/legacyosint/osint-chatbot/internal/imaging"
	"github.com/legacyosint/osint-chatbot/internal/models"
	"github.com/legacyosint/osint-chatbot/internal/provider"
)

// ErrEmptyInput is returned when a turn carries neither text nor an image.
var ErrEmptyInput = errors.New("empty input")

const (
	defaultTemperature = 0.7
	maxOutputTokens    = 8192
)

// Store is the slice of the persistence layer the chat core depends on.
type Store interface {
	VerifySessionOwner(ctx context.Context, userID, sessionID int64) error
	RecentWindow(ctx context.Context, sessionID int64, limit int) ([]*models.Message, error)
	AppendMessage(ctx context.Context, userID, sessionID int64, sender models.Sender, content, attachment string) (*models.Message, error)
	MessageCount(ctx context.Context, sessionID int64) (int, error)
	RenameSession(ctx context.Context, userID, sessionID int64, title string) error
	Dossier(ctx context.Context, userID int64) (string, error)
	UpsertDossier(ctx context.Context, userID int64, dossier string) error
}

// TurnInput carries the normalized pieces of one user turn between the
// assembly and persistence stages.
type TurnInput struct {
	Text       string
	Attachment string // durable base64 form, empty when no image
	PriorTurns int
}

// Assembler builds the bounded model request for a turn: recent history,
// dossier-bearing system instruction, and the new user content.
type Assembler struct {
	store  Store
	window int
}

func NewAssembler(store Store, window int) *Assembler {
	if window <= 0 {
		window = 8
	}
	return &Assembler{store: store, window: window}
}

// BuildTurn validates ownership and input, normalizes the attachment, and
// assembles the provider request. Image bytes must already be normalized by
// the imaging codec.
func (a *Assembler) BuildTurn(ctx context.Context, userID, sessionID int64, text string, image []byte) (provider.Request, *TurnInput, error) {
	var req provider.Request

	if err := a.store.VerifySessionOwner(ctx, userID, sessionID); err != nil {
		return req, nil, err
	}
	if strings.TrimSpace(text) == "" && len(image) == 0 {
		return req, nil, ErrEmptyInput
	}

	dossier, err := a.store.Dossier(ctx, userID)
	if err != nil {
		return req, nil, fmt.Errorf("load dossier: %w", err)
	}

	history, err := a.store.RecentWindow(ctx, sessionID, a.window)
	if err != nil {
		return req, nil, fmt.Errorf("load history window: %w", err)
	}

	contents := make([]provider.Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, historyContent(msg))
	}

	input := &TurnInput{Text: text, PriorTurns: len(history)}
	userParts := make([]provider.Part, 0, 2)
	if len(image) > 0 {
		input.Attachment = imaging.ToDurable(image)
		userParts = append(userParts, provider.Part{Data: image, MIME: imaging.NormalizedMIME})
	}
	if text != "" {
		userParts = append(userParts, provider.Part{Text: text})
	}
	contents = append(contents, provider.Content{Role: provider.RoleUser, Parts: userParts})

	req = provider.Request{
		System:          buildSystemInstruction(dossier),
		Contents:        contents,
		Temperature:     defaultTemperature,
		MaxOutputTokens: maxOutputTokens,
	}
	return req, input, nil
}

// historyContent converts a stored message into provider content. A stored
// attachment that no longer decodes is dropped with a log line; the text
// still rides along so one bad row cannot poison the whole window.
func historyContent(msg *models.Message) provider.Content {
	role := provider.RoleUser
	if msg.Sender == models.SenderAssistant {
		role = provider.RoleModel
	}

	parts := make([]provider.Part, 0, 2)
	if msg.HasAttachment && msg.Attachment != "" {
		data, err := imaging.FromDurable(msg.Attachment)
		if err == nil {
			err = imaging.Verify(data)
		}
		if err != nil {
			log.Printf("chat: dropping unreadable attachment on message %d: %v", msg.ID, err)
		} else {
			parts = append(parts, provider.Part{Data: data, MIME: imaging.NormalizedMIME})
		}
	}
	if msg.Content != "" || len(parts) == 0 {
		parts = append(parts, provider.Part{Text: msg.Content})
	}
	return provider.Content{Role: role, Parts: parts}
}
