// Package store persists Responses and ChatCompletions across orchestration
// turns. Its defining behavior is the set-union merge of input history
// performed when a Response ID is written more than once.
package store

import (
	"context"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// ResponseStore persists canonical Responses. Put merges input history: the
// stored input items are the union of what was already there and what the
// caller supplies, in first-seen order. The stored Response itself,
// including its Output, is replaced by the one passed to the latest Put;
// Output items are not merged.
type ResponseStore interface {
	Put(ctx context.Context, resp *models.Response, inputItems []models.InputItem) error
	Get(ctx context.Context, id string) (*models.Response, []models.InputItem, error)
	Delete(ctx context.Context, id string) error
}

// CompletionStore persists ChatCompletions for /v1/chat/completions replay
// and debugging. Unlike ResponseStore it has no merge semantics: a chat
// completion is a single atomic artifact.
type CompletionStore interface {
	Put(ctx context.Context, c *models.ChatCompletion) error
	Get(ctx context.Context, id string) (*models.ChatCompletion, error)
	Delete(ctx context.Context, id string) error
}

// ErrNotFound is returned by Get when no record exists for the given ID.
// Callers translate this to gatewayerrors.ErrNotFound at the HTTP boundary.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
