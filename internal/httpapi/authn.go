package httpapi

import (
	"errors"
	"net/http"

	"notenest.app/internal/auth"
	"notenest.app/internal/obs"
)

// withAuth resolves the bearer token to a live account and stores it in the
// request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := a.authn.Authenticate(r.Context(), r.Header)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithAccount(r.Context(), acct)))
	})
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		obs.AuthFailure("missing")
		writeError(w, r, http.StatusUnauthorized, auth.ErrMissingToken.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		obs.AuthFailure("invalid")
		writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
	default:
		obs.AuthFailure("error")
		internalError(w, r, "Authentication error", err)
	}
}
