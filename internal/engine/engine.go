package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"signalscore/internal/platform"
	"signalscore/internal/repository"
)

// ErrProjectDisabled means the project/signal pair exists but scoring is
// switched off. Schedulers treat it as a skip, not a failure.
var ErrProjectDisabled = errors.New("scoring disabled for this project/signal pair")

// ConfigurationError is fatal for the whole invocation: missing required run
// fields, unsupported platform, or missing dynamic scoring config.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "engine configuration: " + e.Reason
}

// RunParams identifies one scoring invocation.
type RunParams struct {
	Platform           string
	UserID             string
	ProjectID          string
	SignalStrengthName string
	Force              bool
	TestRequestingUser *string
}

// Engine wires the registry, repository and adapters together and executes
// one user's pipeline run.
type Engine struct {
	Registry      *platform.Registry
	Repo          repository.Repository
	Logger        *zap.Logger
	DefaultSignal string
}

// Run validates the params, resolves the adapter and the dynamic scoring
// configuration, and processes the user. Fails fast before any I/O on bad
// input.
func (e *Engine) Run(ctx context.Context, p RunParams) error {
	var missing []string
	if strings.TrimSpace(p.Platform) == "" {
		missing = append(missing, "platform")
	}
	if strings.TrimSpace(p.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(p.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Reason: "missing required fields: " + strings.Join(missing, ", ")}
	}

	adapter, err := e.Registry.Resolve(p.Platform)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	signalName := strings.TrimSpace(p.SignalStrengthName)
	if signalName == "" {
		signalName = e.DefaultSignal
	}
	signal, err := e.Repo.GetSignalStrengthByName(ctx, signalName)
	if err != nil {
		return err
	}
	if signal == nil {
		return &ConfigurationError{Reason: "unknown signal " + signalName}
	}

	cfg, err := e.Repo.GetSignalStrengthConfig(ctx, signal.ID, p.ProjectID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return &ConfigurationError{
			Reason: "no scoring config for signal " + signalName + " in project " + p.ProjectID,
		}
	}
	if !cfg.Enabled {
		return ErrProjectDisabled
	}
	if cfg.PreviousDays <= 0 {
		cfg.PreviousDays = repository.DefaultLookbackDays
	}

	return adapter.ProcessUser(ctx, platform.Run{
		UserID:             p.UserID,
		ProjectID:          p.ProjectID,
		Signal:             *signal,
		Config:             *cfg,
		Force:              p.Force,
		TestRequestingUser: p.TestRequestingUser,
	})
}

// Sweep runs every linked forum user sequentially. Per-user failures are
// logged and never abort the sweep.
func (e *Engine) Sweep(ctx context.Context) {
	users, err := e.Repo.ListForumUsers(ctx)
	if err != nil {
		e.Logger.Error("sweep: failed to list users", zap.Error(err))
		return
	}
	ran, skipped := 0, 0
	for _, user := range users {
		if ctx.Err() != nil {
			e.Logger.Warn("sweep cancelled", zap.Error(ctx.Err()))
			return
		}
		err := e.Run(ctx, RunParams{
			Platform:  "forum",
			UserID:    user.UserID,
			ProjectID: user.ProjectID,
		})
		switch {
		case err == nil:
			ran++
		case errors.Is(err, ErrProjectDisabled):
			skipped++
		default:
			var cfgErr *ConfigurationError
			if errors.As(err, &cfgErr) {
				skipped++
				e.Logger.Debug("sweep: skipping user",
					zap.String("user_id", user.UserID),
					zap.String("project_id", user.ProjectID),
					zap.Error(err))
				continue
			}
			e.Logger.Error("sweep: user run failed",
				zap.String("user_id", user.UserID),
				zap.String("project_id", user.ProjectID),
				zap.Error(err))
		}
	}
	e.Logger.Info("sweep complete", zap.Int("ran", ran), zap.Int("skipped", skipped))
}
