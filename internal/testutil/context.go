package testutil

import (
	"context"

	"github.com/billforge/billforge/internal/types"
)

// SetupContext returns a context seeded with the default tenant and
// user, the way request middleware would populate it in production
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxTenantID, types.DefaultTenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
