package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notenest.app/internal/audit"
	"notenest.app/internal/auth"
	"notenest.app/internal/ids"
	"notenest.app/internal/notes"
	"notenest.app/internal/obs"
	"notenest.app/internal/quota"
)

const quotaDeniedMessage = "Note limit reached. Upgrade to Pro for unlimited notes."

type createNoteRequest struct {
	Content string `json:"content"`
}

type planLimits struct {
	MaxNotes     quota.Limit `json:"maxNotes"`
	CurrentCount int         `json:"currentCount"`
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	list, err := a.notes.List(r.Context(), acct.ID)
	if err != nil {
		internalError(w, r, "Failed to fetch notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": list,
		"user":  acct,
		"planLimits": planLimits{
			MaxNotes:     a.guard.LimitFor(acct.Plan),
			CurrentCount: len(list),
		},
	})
}

func (a *API) createNote(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())

	var req createNoteRequest
	if !decodeBody(w, r, &req, "Content is required") {
		return
	}

	decision, err := a.guard.Admit(r.Context(), acct)
	if err != nil {
		internalError(w, r, "Failed to enforce plan limits", err)
		return
	}
	if err := decision.Err(); err != nil {
		a.denyQuota(w, r, err)
		return
	}
	obs.QuotaDecision("admit")

	note, err := a.notes.Create(r.Context(), acct.ID, req.Content, decision.Limit)
	if err != nil {
		a.handleNotesError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"note": note})
}

func (a *API) deleteNote(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if !ids.Valid(id) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Note deleted successfully"})
		return
	}
	if _, err := a.notes.Delete(r.Context(), acct.ID, id); err != nil {
		a.handleNotesError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Note deleted successfully"})
}

func (a *API) denyQuota(w http.ResponseWriter, r *http.Request, err error) {
	var le *quota.LimitError
	if !errors.As(err, &le) {
		internalError(w, r, "Failed to enforce plan limits", err)
		return
	}
	obs.QuotaDecision("deny")
	_ = audit.LogEvent(r.Context(), audit.EventQuotaDenied, map[string]any{
		"limit":   le.Limit,
		"current": le.Current,
	})
	writeErrorWith(w, r, http.StatusForbidden, quotaDeniedMessage, map[string]any{
		"limit":   le.Limit,
		"current": le.Current,
	})
}

func (a *API) handleNotesError(w http.ResponseWriter, r *http.Request, err error) {
	var le *quota.LimitError
	switch {
	case errors.Is(err, notes.ErrEmptyContent):
		writeError(w, r, http.StatusBadRequest, "Content cannot be empty")
	case errors.As(err, &le):
		a.denyQuota(w, r, err)
	default:
		internalError(w, r, "Failed to save note", err)
	}
}
