// Package llm defines the provider abstraction used to dispatch composed
// prompt requests.
//
// Providers handle API communication with LLM services and nothing else; the
// orchestrator composes the request (prefix injection, active fragments)
// before the messages ever reach a provider. This keeps providers reusable
// in non-promptdeck contexts and testable in isolation.
package llm

import (
	"context"

	"github.com/entrhq/promptdeck/pkg/types"
)

// Provider is a minimal chat-completion backend.
type Provider interface {
	// Complete sends the messages and returns the full assistant reply.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// Model returns the model name requests are sent to.
	Model() string
}
