package httpapi

import (
	"net/http"
	"strings"
	"time"

	"notenest.app/internal/accounts"
	"notenest.app/internal/audit"
	"notenest.app/internal/auth"
)

const emailRequired = "Email is required"

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      accounts.Account `json:"user"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req, emailRequired) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, emailRequired)
		return
	}

	acct, created, err := accounts.FindOrCreate(r.Context(), a.accounts, email)
	if err != nil {
		internalError(w, r, "Failed to authenticate user", err)
		return
	}

	token, expiresAt, err := a.codec.Issue(acct.ID, acct.Email, a.cfg.TokenTTL)
	if err != nil {
		internalError(w, r, "Token generation failed", err)
		return
	}

	ctx := auth.ContextWithAccount(r.Context(), acct)
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{
		"created":    created,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      acct,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct})
}
