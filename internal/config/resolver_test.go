package config

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"go.uber.org/zap"
)

type stubSecretStore struct {
	payload map[string]any
	err     error
	calls   int
	names   []string
}

func (s *stubSecretStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	s.calls++
	s.names = append(s.names, name)
	if s.err != nil {
		return nil, s.err
	}
	return json.Marshal(s.payload)
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SIG_DB_DSN", "postgres://env")
	t.Setenv("SIG_LLM_API_KEY", "env-key")
	t.Setenv("SIG_FORUM_BASE_URL", "https://forum.env")
}

func TestApp_EnvFillsRequiredFieldsOverDefaults(t *testing.T) {
	setRequiredEnv(t)

	r := NewResolver("", nil, zap.NewNop())
	cfg, err := r.App(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.DB.DSN != "postgres://env" {
		t.Fatalf("db.dsn=%q", cfg.DB.DSN)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("llm.api_key=%q", cfg.LLM.APIKey)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("server.http_addr=%q want default :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Engine.DefaultSignal != "forum_engagement" {
		t.Fatalf("engine.default_signal=%q", cfg.Engine.DefaultSignal)
	}
	if cfg.App.IsProd() {
		t.Fatalf("default env must not be prod")
	}
}

func TestApp_MissingFieldsReportedTogether(t *testing.T) {
	t.Setenv("SIG_DB_DSN", "")
	t.Setenv("SIG_LLM_API_KEY", "")
	t.Setenv("SIG_FORUM_BASE_URL", "")

	r := NewResolver("", nil, zap.NewNop())
	_, err := r.App(context.Background())
	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("err=%T want *MissingFieldsError", err)
	}
	got := append([]string(nil), missing.Fields...)
	sort.Strings(got)
	want := []string{"db.dsn", "forum.base_url", "llm.api_key"}
	if len(got) != len(want) {
		t.Fatalf("fields=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fields=%v want=%v", got, want)
		}
	}
}

func TestApp_SecretStoreSkippedOutsideProd(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIG_APP_ENV", "dev")

	store := &stubSecretStore{payload: map[string]any{}}
	r := NewResolver("", store, zap.NewNop())
	if _, err := r.App(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if store.calls != 0 {
		t.Fatalf("secret store consulted outside prod: %d calls", store.calls)
	}
}

func TestApp_ProdLoadsSecretsUnderEnv(t *testing.T) {
	t.Setenv("SIG_APP_ENV", "prod")
	t.Setenv("SIG_DB_DSN", "postgres://env")
	t.Setenv("SIG_LLM_API_KEY", "")
	t.Setenv("SIG_FORUM_BASE_URL", "")

	store := &stubSecretStore{payload: map[string]any{
		"db":    map[string]any{"dsn": "postgres://secret"},
		"llm":   map[string]any{"api_key": "secret-key"},
		"forum": map[string]any{"base_url": "https://forum.secret"},
	}}
	r := NewResolver("", store, zap.NewNop())
	cfg, err := r.App(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if store.calls != 1 {
		t.Fatalf("secret fetches=%d want=1", store.calls)
	}
	if store.names[0] != "signalscore/prod/engine" {
		t.Fatalf("secret name=%q", store.names[0])
	}
	// Environment beats the secret store; the store fills what env leaves blank.
	if cfg.DB.DSN != "postgres://env" {
		t.Fatalf("db.dsn=%q want env value", cfg.DB.DSN)
	}
	if cfg.LLM.APIKey != "secret-key" {
		t.Fatalf("llm.api_key=%q want secret value", cfg.LLM.APIKey)
	}
	if cfg.Forum.BaseURL != "https://forum.secret" {
		t.Fatalf("forum.base_url=%q want secret value", cfg.Forum.BaseURL)
	}
}

func TestApp_SecretFetchFailureFallsBackToEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIG_APP_ENV", "prod")

	store := &stubSecretStore{err: errors.New("access denied")}
	r := NewResolver("", store, zap.NewNop())
	cfg, err := r.App(context.Background())
	if err != nil {
		t.Fatalf("a secret outage must not take the service down when env suffices: %v", err)
	}
	if cfg.DB.DSN != "postgres://env" {
		t.Fatalf("db.dsn=%q", cfg.DB.DSN)
	}
}

func TestApp_CachedUntilReset(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIG_APP_ENV", "prod")

	store := &stubSecretStore{payload: map[string]any{}}
	r := NewResolver("", store, zap.NewNop())

	first, err := r.App(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	second, err := r.App(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if first != second {
		t.Fatalf("cached config not reused")
	}
	if store.calls != 1 {
		t.Fatalf("secret fetches=%d want=1, resolution must run once", store.calls)
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("reset in test runtime: %v", err)
	}
	if _, err := r.App(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if store.calls != 2 {
		t.Fatalf("secret fetches=%d want=2 after reset", store.calls)
	}
}

func TestAdapter_UnsupportedPlatform(t *testing.T) {
	setRequiredEnv(t)

	r := NewResolver("", nil, zap.NewNop())
	if _, err := r.Adapter(context.Background(), "chat"); err == nil {
		t.Fatalf("unsupported platform must fail")
	}
	fc, err := r.Adapter(context.Background(), "Forum")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if fc.BaseURL != "https://forum.env" {
		t.Fatalf("forum.base_url=%q", fc.BaseURL)
	}
}
