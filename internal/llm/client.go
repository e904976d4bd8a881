// Package llm provides the generative-text transports behind the external
// service gateway.
package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned by Offline when no model is wired.
var ErrNotConfigured = errors.New("llm: no model configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	// JSON asks the provider for a JSON document instead of prose when it
	// supports a response MIME type.
	JSON bool
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Prompt builds a single-turn request.
func Prompt(text string) Request {
	return Request{
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: -1,
	}
}

// Offline is a Client that always fails with ErrNotConfigured.
type Offline struct{}

func (Offline) Complete(context.Context, Request) (Response, error) {
	return Response{}, ErrNotConfigured
}
