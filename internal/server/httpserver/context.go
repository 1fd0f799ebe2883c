package httpserver

import (
	"context"

	"github.com/and161185/songbook/internal/model"
)

type ctxKey string

const identityKey ctxKey = "songbook.identity"

// WithIdentity stores the authenticated caller in ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom fetches the caller stored by WithIdentity.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}
