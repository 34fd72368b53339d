package auth

import (
	"context"

	"notenest.app/internal/accounts"
)

type accountContextKey struct{}

// ContextWithAccount attaches the authenticated account to the context.
func ContextWithAccount(ctx context.Context, acct accounts.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, &acct)
}

// AccountFromContext extracts the authenticated account from the context.
func AccountFromContext(ctx context.Context) (accounts.Account, bool) {
	if ctx == nil {
		return accounts.Account{}, false
	}
	v, ok := ctx.Value(accountContextKey{}).(*accounts.Account)
	if !ok || v == nil {
		return accounts.Account{}, false
	}
	return *v, true
}

// AccountIDFromContext returns the authenticated account id, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	acct, ok := AccountFromContext(ctx)
	if !ok || acct.ID == "" {
		return "", false
	}
	return acct.ID, true
}
