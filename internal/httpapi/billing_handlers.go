package httpapi

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"notenest.app/internal/accounts"
	"notenest.app/internal/audit"
	"notenest.app/internal/auth"
	"notenest.app/internal/billing"
	"notenest.app/internal/obs"
	"notenest.app/internal/stream"
)

const maxWebhookBytes = 256 << 10

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	if acct.Plan == accounts.PlanPro {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "User already has Pro plan",
			"plan":    accounts.PlanPro,
		})
		return
	}
	checkout, err := checkoutURL(a.cfg.CheckoutURL, a.cfg.ClientURL, acct.Email)
	if err != nil {
		internalError(w, r, "Checkout URL not configured", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkoutUrl": checkout,
		"message":     "Upgrade to Pro for unlimited notes!",
	})
}

// checkoutURL appends the buyer email and redirect targets to base.
func checkoutURL(base, clientURL, email string) (string, error) {
	if base == "" {
		return "", errors.New("checkout url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("checkout url must be absolute")
	}
	q := u.Query()
	q.Set("checkout[email]", email)
	q.Set("checkout[success_url]", clientURL+"/notes?upgraded=true")
	q.Set("checkout[cancel_url]", clientURL+"/notes?cancelled=true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			obs.WebhookDelivery("rejected")
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		obs.WebhookDelivery("rejected")
		writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := a.reconciler.Handle(r.Context(), r.Header.Get(billing.SignatureHeader), body)
	if err != nil {
		handleWebhookError(w, r, err)
		return
	}

	switch res.Status {
	case billing.StatusApplied:
		if res.Replayed {
			obs.WebhookDelivery("replayed")
		} else {
			obs.WebhookDelivery("applied")
		}
		ctx := r.Context()
		if res.Account != nil {
			ctx = auth.ContextWithAccount(ctx, *res.Account)
			if a.stream != nil && !res.Replayed {
				a.stream.Publish(stream.PlanChanged{AccountID: res.Account.ID, Plan: res.Account.Plan})
			}
		}
		_ = audit.LogEvent(ctx, audit.EventPlanUpgraded, map[string]any{
			"event":    res.Event.Name,
			"email":    res.Event.CustomerEmail,
			"replayed": res.Replayed,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "Plan upgraded successfully",
			"user":     res.Account,
			"replayed": res.Replayed,
		})
	default:
		obs.WebhookDelivery("ignored")
		obs.Info("webhook event ignored", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"event":      res.Event.Name,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Event received but not processed",
		})
	}
}

func handleWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrNoSecret):
		obs.WebhookDelivery("misconfigured")
		internalError(w, r, "Webhook secret not configured", err)
	case errors.Is(err, billing.ErrMissingSignature):
		obs.WebhookDelivery("unauthorized")
		writeError(w, r, http.StatusUnauthorized, "Missing signature")
	case errors.Is(err, billing.ErrSignatureMismatch):
		obs.WebhookDelivery("unauthorized")
		writeError(w, r, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, billing.ErrMalformedPayload):
		obs.WebhookDelivery("malformed")
		writeError(w, r, http.StatusBadRequest, "Malformed payload")
	case errors.Is(err, billing.ErrAccountNotFound):
		obs.WebhookDelivery("not_found")
		writeError(w, r, http.StatusNotFound, "User not found")
	default:
		obs.WebhookDelivery("error")
		internalError(w, r, "Failed to update user plan", err)
	}
}
