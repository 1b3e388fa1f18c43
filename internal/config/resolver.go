package config

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"signalscore/internal/secrets"
)

const serviceName = "signalscore"

// Resolver loads the layered configuration once per process and caches it.
// Precedence, highest wins: environment variables > secret-store values >
// schema defaults. Outside production the secret store is skipped entirely.
//
// Lifecycle: populate-once. Reset exists for tests only and refuses to run
// outside a test runtime.
type Resolver struct {
	mu      sync.Mutex
	path    string
	secrets secrets.Store
	logger  *zap.Logger
	cached  *Config
}

func NewResolver(path string, store secrets.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{path: path, secrets: store, logger: logger}
}

// App resolves and caches the process configuration.
func (r *Resolver) App(ctx context.Context) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached, nil
	}
	cfg, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.cached = cfg
	return cfg, nil
}

// Adapter returns the static configuration for a platform adapter. Unsupported
// platforms fail before any I/O.
func (r *Resolver) Adapter(ctx context.Context, platform string) (*ForumConfig, error) {
	cfg, err := r.App(ctx)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "forum":
		fc := cfg.Forum
		return &fc, nil
	default:
		return nil, fmt.Errorf("config: unsupported platform %q", platform)
	}
}

// Reset clears the cache. It fails outside a test runtime so production code
// can never bust the process-wide cache.
func (r *Resolver) Reset() error {
	if !isTestRuntime() {
		return fmt.Errorf("config: Reset is only available in a test runtime")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	return nil
}

func isTestRuntime() bool {
	if flag.Lookup("test.v") != nil {
		return true
	}
	return strings.EqualFold(os.Getenv("SIG_APP_ENV"), "test")
}

func (r *Resolver) load(ctx context.Context) (*Config, error) {
	v := newViper()
	if r.path != "" {
		v.SetConfigFile(r.path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", r.path, err)
			}
			r.logger.Warn("config file not found, using environment and defaults",
				zap.String("path", r.path))
		}
	}

	// Secret-store values merge below the environment: viper resolves env
	// overrides on top of merged config maps, so env always wins.
	env := v.GetString("app.env")
	if strings.EqualFold(env, "prod") && r.secrets != nil {
		name := secrets.Name(serviceName, strings.ToLower(env), "engine")
		blob, err := r.secrets.Fetch(ctx, name)
		if err != nil {
			r.logger.Warn("secret store fetch failed, continuing with environment",
				zap.String("secret", name), zap.Error(err))
		} else {
			var m map[string]any
			if err := json.Unmarshal(blob, &m); err != nil {
				r.logger.Warn("secret store payload is not valid JSON, ignoring",
					zap.String("secret", name), zap.Error(err))
			} else if err := v.MergeConfigMap(m); err != nil {
				return nil, fmt.Errorf("config: merge secrets: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
