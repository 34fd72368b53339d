package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notenest.app/internal/accounts"
	"notenest.app/internal/auth"
	"notenest.app/internal/billing"
	"notenest.app/internal/config"
	"notenest.app/internal/notes"
	"notenest.app/internal/stream"
)

const (
	testAuthSecret    = "test-auth-secret"
	testWebhookSecret = "test-webhook-secret"
)

type apiClient struct {
	t       *testing.T
	baseURL string
	client  *http.Client
	dir     *accounts.InMemory
	store   *notes.InMemory
	codec   *auth.TokenCodec
}

func testConfig() config.Config {
	return config.Config{
		AuthSecret:    testAuthSecret,
		WebhookSecret: testWebhookSecret,
		FreeNoteLimit: 3,
		TokenTTL:      time.Hour,
		HTTPAddr:      ":0",
		CheckoutURL:   "https://notenest.lemonsqueezy.com/checkout/buy/pro",
		ClientURL:     "http://localhost:5173",
		RateBurst:     1000,
		RatePerSec:    1000,
	}
}

func newTestAPI(t *testing.T, mutate ...func(*config.Config, *Deps)) *apiClient {
	t.Helper()

	cfg := testConfig()
	dir := accounts.NewInMemory()
	store := notes.NewInMemory()
	codec, err := auth.NewTokenCodec(cfg.AuthSecret)
	require.NoError(t, err)

	deps := Deps{
		Accounts: dir,
		Notes:    notes.NewService(store),
		Codec:    codec,
		Stream:   stream.New(),
		Version:  "test",
	}
	for _, fn := range mutate {
		fn(&cfg, &deps)
	}
	deps.Config = cfg
	if deps.Reconciler == nil {
		deps.Reconciler = billing.NewReconciler(cfg.WebhookSecret, deps.Accounts)
	}

	srv := httptest.NewServer(New(deps).Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		t:       t,
		baseURL: srv.URL,
		client:  srv.Client(),
		dir:     dir,
		store:   store,
		codec:   codec,
	}
}

func (c *apiClient) do(method, path string, body []byte, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	return resp
}

func (c *apiClient) doJSON(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return c.do(method, path, payload, headers)
}

func (c *apiClient) login(email string) (string, accounts.Account) {
	c.t.Helper()
	resp := c.doJSON(http.MethodPost, "/api/auth/login", map[string]string{"email": email}, "")
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	out := decode[loginResponse](c.t, resp)
	require.NotEmpty(c.t, out.Token)
	return out.Token, out.User
}

func (c *apiClient) webhook(body []byte, signature string) *http.Response {
	c.t.Helper()
	headers := map[string]string{}
	if signature != "" {
		headers[billing.SignatureHeader] = signature
	}
	return c.do(http.MethodPost, "/api/webhook", body, headers)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(r.Body).Decode(&out))
	return out
}

func upgradePayload(event, email string) []byte {
	return []byte(`{"meta":{"event_name":"` + event + `"},"data":{"attributes":{"customer_email":"` + email + `"}}}`)
}

func TestFreeAccountHitsQuotaOnFourthNote(t *testing.T) {
	c := newTestAPI(t)
	token, user := c.login("a@x.com")
	assert.Equal(t, accounts.PlanFree, user.Plan)

	for i := 0; i < 3; i++ {
		resp := c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "note"}, token)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "note %d", i+1)
		resp.Body.Close()
	}

	resp := c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "fourth"}, token)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.EqualValues(t, 3, body["limit"])
	assert.EqualValues(t, 3, body["current"])
	assert.Contains(t, body["error"], "Note limit reached")
	assert.NotEmpty(t, body["request_id"])

	n, err := c.store.CountOwnedBy(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpgradeTakesEffectWithoutRelogin(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login("a@x.com")
	for i := 0; i < 3; i++ {
		c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "note"}, token).Body.Close()
	}

	body := upgradePayload(billing.EventSubscriptionCreated, "a@x.com")
	resp := c.webhook(body, billing.Sign([]byte(testWebhookSecret), body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Plan upgraded successfully", out["message"])
	user, ok := out["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pro", user["plan"])

	resp = c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "fourth"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = c.doJSON(http.MethodGet, "/api/notes", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Notes      []notes.Note     `json:"notes"`
		User       accounts.Account `json:"user"`
		PlanLimits map[string]any   `json:"planLimits"`
	}](t, resp)
	assert.Len(t, list.Notes, 4)
	assert.Equal(t, accounts.PlanPro, list.User.Plan)
	assert.Contains(t, list.PlanLimits, "maxNotes")
	assert.Nil(t, list.PlanLimits["maxNotes"])
	assert.EqualValues(t, 4, list.PlanLimits["currentCount"])
}

func TestTamperedWebhookLeavesPlanUnchanged(t *testing.T) {
	c := newTestAPI(t)
	c.login("a@x.com")

	body := upgradePayload(billing.EventOrderCreated, "a@x.com")
	sig := []byte(billing.Sign([]byte(testWebhookSecret), body))
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}

	resp := c.webhook(body, string(sig))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	acct, err := c.dir.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.PlanFree, acct.Plan)
}

func TestWebhookStatusMapping(t *testing.T) {
	c := newTestAPI(t)
	c.login("known@x.com")
	sign := func(b []byte) string { return billing.Sign([]byte(testWebhookSecret), b) }

	malformed := []byte(`{"meta":`)
	noEmail := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{}}}`)
	unknown := upgradePayload(billing.EventSubscriptionUpdated, "ghost@x.com")
	ignored := upgradePayload("subscription_cancelled", "known@x.com")

	cases := []struct {
		name   string
		body   []byte
		sig    string
		status int
		msg    string
	}{
		{"missing signature", ignored, "", http.StatusUnauthorized, "Missing signature"},
		{"malformed json", malformed, sign(malformed), http.StatusBadRequest, "Malformed payload"},
		{"missing email", noEmail, sign(noEmail), http.StatusBadRequest, "Malformed payload"},
		{"unknown account", unknown, sign(unknown), http.StatusNotFound, "User not found"},
		{"ignored event", ignored, "sha256=" + sign(ignored), http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := c.webhook(tc.body, tc.sig)
			require.Equal(t, tc.status, resp.StatusCode)
			out := decode[map[string]any](t, resp)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, out["error"])
			} else {
				assert.Equal(t, "Event received but not processed", out["message"])
			}
		})
	}

	acct, err := c.dir.FindByEmail(context.Background(), "known@x.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.PlanFree, acct.Plan)
}

func TestWebhookWithoutSecretIsServerError(t *testing.T) {
	c := newTestAPI(t, func(cfg *config.Config, _ *Deps) { cfg.WebhookSecret = "" })
	body := upgradePayload(billing.EventOrderCreated, "a@x.com")

	resp := c.webhook(body, billing.Sign([]byte("anything"), body))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Webhook secret not configured", out["error"])
}

func TestLoginValidation(t *testing.T) {
	c := newTestAPI(t)

	resp := c.doJSON(http.MethodPost, "/api/auth/login", map[string]string{"email": "   "}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Email is required", out["error"])

	resp = c.do(http.MethodPost, "/api/auth/login", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDecodeFailuresUseFixedMessages(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login("a@x.com")

	cases := []struct {
		name, path, token, body, want string
	}{
		{"login wrong type", "/api/auth/login", "", `{"email": 42}`, "Email is required"},
		{"login unknown field", "/api/auth/login", "", `{"email":"a@x.com","admin":true}`, "Email is required"},
		{"login trailing data", "/api/auth/login", "", `{"email":"a@x.com"}{}`, "Email is required"},
		{"note wrong type", "/api/notes", token, `{"content": 7}`, "Content is required"},
		{"note empty body", "/api/notes", token, ``, "Content is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{"Content-Type": "application/json"}
			if tc.token != "" {
				headers["Authorization"] = "Bearer " + tc.token
			}
			resp := c.do(http.MethodPost, tc.path, []byte(tc.body), headers)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			out := decode[map[string]any](t, resp)
			assert.Equal(t, tc.want, out["error"])
			assert.NotContains(t, out["error"], "json")
		})
	}
}

func TestLoginIsIdempotentPerEmail(t *testing.T) {
	c := newTestAPI(t)
	_, first := c.login(" same@x.com ")
	_, second := c.login("same@x.com")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "same@x.com", first.Email)
}

func TestNotesRequireContent(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login("a@x.com")

	resp := c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "  \n"}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Content cannot be empty", out["error"])
}

func TestDeleteIsScopedToOwner(t *testing.T) {
	c := newTestAPI(t)
	owner, _ := c.login("owner@x.com")
	intruder, _ := c.login("intruder@x.com")

	resp := c.doJSON(http.MethodPost, "/api/notes", map[string]string{"content": "mine"}, owner)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[struct {
		Note notes.Note `json:"note"`
	}](t, resp)

	resp = c.doJSON(http.MethodDelete, "/api/notes/"+created.Note.ID, nil, intruder)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	n, err := c.store.CountOwnedBy(context.Background(), created.Note.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp = c.doJSON(http.MethodDelete, "/api/notes/"+created.Note.ID, nil, owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	n, err = c.store.CountOwnedBy(context.Background(), created.Note.OwnerID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscribe(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login("buyer@x.com")

	resp := c.doJSON(http.MethodGet, "/api/subscribe", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	checkout, _ := out["checkoutUrl"].(string)
	assert.Contains(t, checkout, "checkout%5Bemail%5D=buyer%40x.com")
	assert.Contains(t, checkout, "upgraded%3Dtrue")

	_, err := c.dir.UpdatePlan(context.Background(), "buyer@x.com", accounts.PlanPro)
	require.NoError(t, err)

	resp = c.doJSON(http.MethodGet, "/api/subscribe", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode[map[string]any](t, resp)
	assert.Equal(t, "pro", out["plan"])
	assert.NotContains(t, out, "checkoutUrl")
}

func TestSubscribeWithoutCheckoutURL(t *testing.T) {
	c := newTestAPI(t, func(cfg *config.Config, _ *Deps) { cfg.CheckoutURL = "" })
	token, _ := c.login("buyer@x.com")

	resp := c.doJSON(http.MethodGet, "/api/subscribe", nil, token)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Checkout URL not configured", out["error"])
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	for _, path := range []string{"/", "/health", "/healthz", "/readyz"} {
		resp := c.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		resp.Body.Close()
	}

	resp := c.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])

	resp = c.do(http.MethodGet, "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "route not found", out["error"])
}

type failingDirectory struct{ accounts.Directory }

func (failingDirectory) FindByID(context.Context, string) (accounts.Account, error) {
	return accounts.Account{}, errors.New("connection refused")
}

func TestAuthStoreFailureIsServerError(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login("a@x.com")

	broken := newTestAPI(t, func(_ *config.Config, d *Deps) {
		d.Accounts = failingDirectory{Directory: accounts.NewInMemory()}
	})
	resp := broken.doJSON(http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Authentication error", out["error"])
	assert.NotContains(t, out["error"], "connection refused")
}
