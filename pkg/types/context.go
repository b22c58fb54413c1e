package types

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type tokenCallerKey struct{}

// WithTokenCaller marks ctx as a callback issued by the token at address.
// Token receivers use it to reject callbacks that did not come from the
// token they accept.
func WithTokenCaller(ctx context.Context, token common.Address) context.Context {
	return context.WithValue(ctx, tokenCallerKey{}, token)
}

// TokenCaller returns the token that issued the callback carried by ctx.
func TokenCaller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(tokenCallerKey{}).(common.Address)

	return addr, ok
}
