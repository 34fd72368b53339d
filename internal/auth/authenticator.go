package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"notenest.app/internal/accounts"
)

const bearerPrefix = "Bearer "

// Authenticator resolves a bearer token to the current account record.
type Authenticator struct {
	codec *TokenCodec
	dir   accounts.Directory
}

func NewAuthenticator(codec *TokenCodec, dir accounts.Directory) *Authenticator {
	return &Authenticator{codec: codec, dir: dir}
}

// Authenticate returns the live account named by the request's bearer token.
//
// ErrMissingToken is returned when the Authorization header is absent or not
// in the "Bearer <token>" form. Every token failure, and a valid token whose
// account no longer exists, is ErrInvalidToken. Directory failures are
// returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, header http.Header) (accounts.Account, error) {
	token, err := BearerToken(header.Get("Authorization"))
	if err != nil {
		return accounts.Account{}, err
	}
	id, err := a.codec.Verify(token)
	if err != nil {
		return accounts.Account{}, ErrInvalidToken
	}
	acct, err := a.dir.FindByID(ctx, id.AccountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return accounts.Account{}, ErrInvalidToken
		}
		return accounts.Account{}, fmt.Errorf("auth: load account: %w", err)
	}
	return acct, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMissingToken
	}
	return token, nil
}
