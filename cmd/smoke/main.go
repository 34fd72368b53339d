package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"notenest.app/internal/billing"
	"notenest.app/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "smoke",
		Short:         "Exercise login, quota and upgrade against a running API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			s := &smoke{
				base:   strings.TrimRight(v.GetString("smoke_url"), "/"),
				secret: v.GetString(config.KeyWebhookSecret),
				limit:  v.GetInt(config.KeyFreeNoteLimit),
				client: &http.Client{Timeout: 5 * time.Second},
			}
			return s.run(ctx)
		},
	}
	cmd.Flags().String("url", "http://localhost:8080", "API base URL")
	cmd.Flags().String("webhook-secret", "", "Webhook secret; skips the upgrade step when empty")
	cmd.Flags().Int("free-limit", 3, "Expected free plan note limit")
	_ = v.BindPFlag("smoke_url", cmd.Flags().Lookup("url"))
	_ = v.BindPFlag(config.KeyWebhookSecret, cmd.Flags().Lookup("webhook-secret"))
	_ = v.BindPFlag(config.KeyFreeNoteLimit, cmd.Flags().Lookup("free-limit"))
	return cmd
}

type smoke struct {
	base   string
	secret string
	limit  int
	client *http.Client
}

func (s *smoke) run(ctx context.Context) error {
	email := fmt.Sprintf("smoke-%s@notenest.test", uuid.NewString()[:8])

	var login struct {
		Token string `json:"token"`
		User  struct {
			ID   string `json:"id"`
			Plan string `json:"plan"`
		} `json:"user"`
	}
	if err := s.call(ctx, http.MethodPost, "/api/auth/login", "", nil, map[string]string{"email": email}, http.StatusOK, &login); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if login.User.Plan != "free" {
		return fmt.Errorf("new account plan = %q, want free", login.User.Plan)
	}

	for i := 0; i < s.limit; i++ {
		body := map[string]string{"content": fmt.Sprintf("smoke note %d", i+1)}
		if err := s.call(ctx, http.MethodPost, "/api/notes", login.Token, nil, body, http.StatusCreated, nil); err != nil {
			return fmt.Errorf("create note %d: %w", i+1, err)
		}
	}

	var denied struct {
		Limit   int `json:"limit"`
		Current int `json:"current"`
	}
	over := map[string]string{"content": "one too many"}
	if err := s.call(ctx, http.MethodPost, "/api/notes", login.Token, nil, over, http.StatusForbidden, &denied); err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	if denied.Limit != s.limit || denied.Current != s.limit {
		return fmt.Errorf("quota payload = %d/%d, want %d/%d", denied.Current, denied.Limit, s.limit, s.limit)
	}

	if s.secret == "" {
		fmt.Printf("smoke test passed (upgrade skipped): account=%s\n", login.User.ID)
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"meta": map[string]any{"event_name": billing.EventOrderCreated},
		"data": map[string]any{"attributes": map[string]any{"customer_email": email}},
	})
	if err != nil {
		return err
	}
	headers := map[string]string{billing.SignatureHeader: billing.Sign([]byte(s.secret), payload)}
	if err := s.call(ctx, http.MethodPost, "/api/webhook", "", headers, json.RawMessage(payload), http.StatusOK, nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if err := s.call(ctx, http.MethodPost, "/api/notes", login.Token, nil, over, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("create after upgrade: %w", err)
	}

	fmt.Printf("smoke test passed: account=%s upgraded to pro\n", login.User.ID)
	return nil
}

func (s *smoke) call(ctx context.Context, method, path, token string, headers map[string]string, body any, want int, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d, want %d (%s)", method, path, resp.StatusCode, want, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
