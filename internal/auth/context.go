package auth

import (
	"context"
)

// Method records how a request was authenticated
type Method string

const (
	MethodIDToken Method = "id_token"
	MethodAPIKey  Method = "api_key"
)

// Account is the authenticated caller. AccountID scopes every read and write.
type Account struct {
	AccountID     string
	Email         string
	DisplayName   string
	EmailVerified bool
	Method        Method
}

type contextKey string

const accountContextKey contextKey = "account"

// WithAccount adds the authenticated account to the context
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// FromContext extracts the authenticated account from the context
func FromContext(ctx context.Context) (*Account, bool) {
	account, ok := ctx.Value(accountContextKey).(*Account)
	return account, ok && account != nil
}

// AccountID returns the account id of the caller, or "" when unauthenticated
func AccountID(ctx context.Context) string {
	if account, ok := FromContext(ctx); ok {
		return account.AccountID
	}
	return ""
}

// IsSystem reports whether the caller used the admin API key
func (a *Account) IsSystem() bool {
	return a.Method == MethodAPIKey
}
