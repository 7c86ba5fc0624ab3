// Package provider defines the model-provider boundary: typed, ordered,
// role-tagged content in, reply text out.
package provider

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either text or inline image data, never both.
type Part struct {
	Text string
	Data []byte
	MIME string
}

// Content is one role-tagged entry in the ordered request body.
type Content struct {
	Role  Role
	Parts []Part
}

// Request carries everything a single generation call needs.
type Request struct {
	System          string
	Contents        []Content
	Temperature     float32
	MaxOutputTokens int32
}

// Client is the single seam between the chat core and any model backend.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrRateLimited matches provider errors caused by quota exhaustion so
// callers can back off. Check with errors.Is.
var ErrRateLimited = errors.New("provider rate limited")

// Error is a failed provider call.
type Error struct {
	Code        int
	Message     string
	RateLimited bool
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}
