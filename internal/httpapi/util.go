package httpapi

import (
	"context"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// backgroundContext detaches an async indexing job from the HTTP request's
// context, which is cancelled the moment attachFile's response is written.
func (d *Deps) backgroundContext() context.Context { return context.Background() }
