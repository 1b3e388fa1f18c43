package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalscore/internal/aggregate"
	"signalscore/internal/client/llm"
	"signalscore/internal/config"
	"signalscore/internal/models"
	"signalscore/internal/repository"
)

// smartScoreModel marks smart rows whose number came from the deterministic
// aggregator rather than an LLM call.
const smartScoreModel = "deterministic_aggregator"

// ConfigurationError is fatal and not retried: the scoring pair is missing a
// prerequisite (e.g. no valid prompt).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "ai configuration: " + e.Reason
}

// Activity is one platform-agnostic user action handed over by an adapter.
type Activity struct {
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind,omitempty"`
	Title     string    `json:"title,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
}

// Orchestrator coordinates prompt preparation, the LLM call, response
// validation and record shaping. It performs no writes; callers persist the
// returned rows.
type Orchestrator struct {
	Repo     repository.Repository
	LLM      llm.Client
	Logger   *zap.Logger
	Defaults config.LLMConfig
}

type RawScoreInput struct {
	User               models.ForumUser
	Signal             models.SignalStrength
	Config             models.SignalStrengthConfig
	Day                string
	Activities         []Activity
	Logs               string
	TestRequestingUser *string
}

// GenerateRawScore produces one persistable daily score row, or an error the
// caller logs and skips (other days keep processing).
func (o *Orchestrator) GenerateRawScore(ctx context.Context, in RawScoreInput) (*models.UserSignalStrength, error) {
	prompt, err := o.Repo.GetLatestPrompt(ctx, in.Signal.ID, models.PromptTypeRaw)
	if err != nil {
		return nil, fmt.Errorf("load raw prompt: %w", err)
	}
	if prompt == nil {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("no valid raw prompt for signal %q", in.Signal.Name),
		}
	}

	content := o.serializeActivities(in.Activities)
	rendered := Render(prompt.Text, map[string]string{
		"content":     content,
		"username":    in.User.Username,
		"displayName": in.User.DisplayName,
		"maxValue":    strconv.FormatFloat(in.Config.MaxValue, 'f', -1, 64),
		"logs":        in.Logs,
	})

	model, temperature, maxTokens := o.resolveModel(in.Config)
	result, err := o.LLM.Complete(ctx, llm.Request{
		Prompt:      rendered,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM call: %w", err)
	}

	payload, err := parseScorePayload(result.Text)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			o.Logger.Warn("LLM response failed validation",
				zap.String("user_id", in.User.UserID),
				zap.String("day", in.Day),
				zap.String("payload", verr.Payload))
		}
		return nil, err
	}

	value := payload.Value
	if value > in.Config.MaxValue {
		value = in.Config.MaxValue
	}

	return &models.UserSignalStrength{
		UserID:             in.User.UserID,
		ProjectID:          in.User.ProjectID,
		SignalStrengthID:   in.Signal.ID,
		Day:                in.Day,
		RawValue:           &value,
		MaxValue:           in.Config.MaxValue,
		Summary:            payload.Summary,
		Description:        payload.Description,
		Improvements:       payload.Improvements,
		ExplainedReasoning: payload.ExplainedReasoning,
		Model:              model,
		Temperature:        temperature,
		PromptID:           &prompt.ID,
		PromptTokens:       result.PromptTokens,
		CompletionTokens:   result.CompletionTokens,
		RequestID:          uuid.NewString(),
		TestRequestingUser: in.TestRequestingUser,
		Created:            time.Now().Unix(),
	}, nil
}

type SmartScoreInput struct {
	User               models.ForumUser
	Signal             models.SignalStrength
	Config             models.SignalStrengthConfig
	Day                string
	RawScores          []models.UserSignalStrength
	TestRequestingUser *string
}

// GenerateSmartScore shapes the aggregated score row. The number comes from
// the deterministic aggregator only — no LLM call can influence it — and the
// qualitative fields carry a fixed diagnostic description.
func (o *Orchestrator) GenerateSmartScore(in SmartScoreInput) *models.UserSignalStrength {
	raws := make([]aggregate.RawScore, 0, len(in.RawScores))
	for _, r := range in.RawScores {
		if r.RawValue == nil {
			continue
		}
		raws = append(raws, aggregate.RawScore{
			Day:      r.Day,
			RawValue: *r.RawValue,
			MaxValue: r.MaxValue,
		})
	}
	result := aggregate.CalculateSmartScore(raws)

	value := float64(result.Score)
	return &models.UserSignalStrength{
		UserID:           in.User.UserID,
		ProjectID:        in.User.ProjectID,
		SignalStrengthID: in.Signal.ID,
		Day:              in.Day,
		Value:            &value,
		MaxValue:         100,
		Summary: fmt.Sprintf("Aggregated from %d daily scores over a %d-day window.",
			len(raws), in.Config.PreviousDays),
		Description:        "Top band days: " + strings.Join(result.TopBandDays, ", "),
		Model:              smartScoreModel,
		RequestID:          uuid.NewString(),
		TestRequestingUser: in.TestRequestingUser,
		Created:            time.Now().Unix(),
	}
}

func (o *Orchestrator) serializeActivities(activities []Activity) string {
	cleaned := make([]Activity, 0, len(activities))
	for _, a := range activities {
		a.Title = StripHTML(a.Title)
		a.Excerpt = StripHTML(a.Excerpt)
		cleaned = append(cleaned, a)
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return ""
	}
	return TruncateContent(string(raw), o.Defaults.MaxContentChars)
}

func (o *Orchestrator) resolveModel(cfg models.SignalStrengthConfig) (string, float64, int) {
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = o.Defaults.Model
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = o.Defaults.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.Defaults.MaxTokens
	}
	return model, temperature, maxTokens
}
