package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"notenest.app/internal/accounts"
	"notenest.app/internal/obs"
)

// SignatureHeader carries the provider's HMAC of the raw body.
const SignatureHeader = "X-Signature"

const schemeTag = "sha256="

// Provider event names that grant the pro plan.
const (
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventOrderCreated               = "order_created"
)

var upgradeEvents = map[string]struct{}{
	EventSubscriptionCreated:        {},
	EventSubscriptionUpdated:        {},
	EventSubscriptionPaymentSuccess: {},
	EventOrderCreated:               {},
}

// IsUpgradeEvent reports whether name is an upgrade-class event.
func IsUpgradeEvent(name string) bool {
	_, ok := upgradeEvents[name]
	return ok
}

// Status is the terminal state of an accepted delivery.
type Status string

const (
	StatusApplied Status = "applied"
	StatusIgnored Status = "ignored"
)

// Event is the part of a verified payload the reconciler acts on.
type Event struct {
	Name          string
	CustomerEmail string
}

// Result describes an accepted delivery. Rejections are returned as errors.
type Result struct {
	Status   Status
	Event    Event
	Account  *accounts.Account
	Replayed bool
}

// DeliveryLog remembers deliveries that were already applied.
type DeliveryLog interface {
	Seen(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string) error
}

type payload struct {
	Meta struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data struct {
		Attributes struct {
			CustomerEmail string `json:"customer_email"`
			UserEmail     string `json:"user_email"`
		} `json:"attributes"`
	} `json:"data"`
}

// Reconciler verifies payment webhooks and applies plan upgrades.
type Reconciler struct {
	secret     []byte
	dir        accounts.Directory
	deliveries DeliveryLog
}

// Option configures Reconciler.
type Option func(*Reconciler)

// WithDeliveryLog enables replay short-circuiting through log.
func WithDeliveryLog(log DeliveryLog) Option {
	return func(r *Reconciler) {
		r.deliveries = log
	}
}

// NewReconciler builds a reconciler. An empty secret is accepted here and
// makes every delivery fail with ErrNoSecret.
func NewReconciler(secret string, dir accounts.Directory, opts ...Option) *Reconciler {
	r := &Reconciler{dir: dir}
	if secret != "" {
		r.secret = []byte(secret)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the exact bytes of body. The signature may
// be bare hex or carry a "sha256=" scheme tag.
func (r *Reconciler) Verify(signature string, body []byte) error {
	if len(r.secret) == 0 {
		return ErrNoSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, schemeTag)
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignatureMismatch
	}
	return nil
}

// Handle verifies body, classifies the event and upgrades the matching
// account to pro. Repeating a delivery is safe and reports StatusApplied.
func (r *Reconciler) Handle(ctx context.Context, signature string, body []byte) (Result, error) {
	if err := r.Verify(signature, body); err != nil {
		return Result{}, err
	}

	ev, err := parseEvent(body)
	if err != nil {
		return Result{}, err
	}
	if !IsUpgradeEvent(ev.Name) {
		return Result{Status: StatusIgnored, Event: ev}, nil
	}
	if ev.CustomerEmail == "" {
		return Result{}, fmt.Errorf("%w: customer email is required", ErrMalformedPayload)
	}

	key := deliveryKey(body)
	if r.replayed(ctx, key) {
		acct, err := r.dir.FindByEmail(ctx, ev.CustomerEmail)
		if err == nil && acct.Plan == accounts.PlanPro {
			return Result{Status: StatusApplied, Event: ev, Account: &acct, Replayed: true}, nil
		}
	}

	updated, err := r.dir.UpdatePlan(ctx, ev.CustomerEmail, accounts.PlanPro)
	if err != nil {
		return Result{}, fmt.Errorf("billing: update plan: %w", err)
	}
	if len(updated) == 0 {
		return Result{}, ErrAccountNotFound
	}
	r.record(ctx, key)

	acct := updated[0]
	return Result{Status: StatusApplied, Event: ev, Account: &acct}, nil
}

func parseEvent(body []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	email := strings.TrimSpace(p.Data.Attributes.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(p.Data.Attributes.UserEmail)
	}
	return Event{Name: strings.TrimSpace(p.Meta.EventName), CustomerEmail: email}, nil
}

func deliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (r *Reconciler) replayed(ctx context.Context, key string) bool {
	if r.deliveries == nil {
		return false
	}
	seen, err := r.deliveries.Seen(ctx, key)
	if err != nil {
		obs.Warn("webhook delivery log lookup failed", map[string]any{"error": err.Error()})
		return false
	}
	return seen
}

func (r *Reconciler) record(ctx context.Context, key string) {
	if r.deliveries == nil {
		return
	}
	if err := r.deliveries.Record(ctx, key); err != nil {
		obs.Warn("webhook delivery log write failed", map[string]any{"error": err.Error()})
	}
}
