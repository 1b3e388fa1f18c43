package forumadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"signalscore/internal/ai"
	forumclient "signalscore/internal/client/forum"
	"signalscore/internal/platform"
	"signalscore/internal/repository"
)

const dayFormat = "2006-01-02"

// ActivityFetcher is the content-source boundary; the forum HTTP client
// implements it, tests stub it.
type ActivityFetcher interface {
	FetchUserActivity(ctx context.Context, username string, limit int) ([]forumclient.UserAction, error)
}

// Adapter scores one user's forum activity: fetch actions, group by UTC day,
// raw-score each day with activity, then aggregate a smart score for
// yesterday. Raw-score days always finish (success or skip) before the smart
// score runs, because aggregation reads the rows just written.
type Adapter struct {
	Repo       repository.Repository
	Fetcher    ActivityFetcher
	AI         *ai.Orchestrator
	Logger     *zap.Logger
	FetchLimit int

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (a *Adapter) Name() string {
	return "forum"
}

func (a *Adapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Adapter) ProcessUser(ctx context.Context, run platform.Run) error {
	log := a.Logger.With(
		zap.String("platform", a.Name()),
		zap.String("user_id", run.UserID),
		zap.String("project_id", run.ProjectID),
		zap.String("signal", run.Signal.Name),
	)

	user, err := a.Repo.GetForumUser(ctx, run.UserID, run.ProjectID)
	if err != nil {
		return fmt.Errorf("load forum user: %w", err)
	}
	if user == nil || strings.TrimSpace(user.Username) == "" {
		// An unlinked account is a normal skip, not an error.
		log.Info("no linked forum account, skipping")
		return nil
	}

	now := a.now().UTC()
	today := now.Format(dayFormat)

	// Liveness marker goes up before the first external call and must come
	// down on every exit path, including panics below this point.
	if err := a.Repo.SetLivenessMarker(ctx, run.UserID, run.ProjectID, run.Signal.ID, today); err != nil {
		return fmt.Errorf("set liveness marker: %w", err)
	}
	defer func() {
		if cerr := a.Repo.ClearLivenessMarker(context.WithoutCancel(ctx), run.UserID, run.ProjectID, run.Signal.ID); cerr != nil {
			log.Error("failed to clear liveness marker", zap.Error(cerr))
		}
	}()

	actions, err := a.Fetcher.FetchUserActivity(ctx, user.Username, a.FetchLimit)
	if err != nil {
		log.Warn("activity fetch failed, ending run", zap.Error(err))
		return nil
	}
	if len(actions) == 0 {
		log.Info("no recent activity, ending run")
		return nil
	}

	byDay := groupByDay(actions)
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	for _, d := range days {
		key := repository.ScoreKey{
			UserID:           run.UserID,
			ProjectID:        run.ProjectID,
			SignalStrengthID: run.Signal.ID,
			Day:              d,
		}
		if run.TestRequestingUser == nil {
			exists, err := a.Repo.RawScoreExists(ctx, key)
			if err != nil {
				log.Warn("raw score existence check failed, skipping day",
					zap.String("day", d), zap.Error(err))
				continue
			}
			if exists {
				continue
			}
		}
		row, err := a.AI.GenerateRawScore(ctx, ai.RawScoreInput{
			User:               *user,
			Signal:             run.Signal,
			Config:             run.Config,
			Day:                d,
			Activities:         toActivities(byDay[d]),
			TestRequestingUser: run.TestRequestingUser,
		})
		if err != nil {
			var cfgErr *ai.ConfigurationError
			if errors.As(err, &cfgErr) {
				// No valid prompt means no day can succeed; abort the run.
				log.Error("scoring misconfigured, aborting run", zap.Error(err))
				return err
			}
			log.Warn("raw score generation failed, skipping day",
				zap.String("day", d), zap.Error(err))
			continue
		}
		if err := a.Repo.SaveScore(ctx, row); err != nil {
			log.Error("failed to persist raw score",
				zap.String("day", d), zap.Error(err))
			continue
		}
	}

	lookback := run.Config.PreviousDays
	if lookback <= 0 {
		lookback = repository.DefaultLookbackDays
	}
	since := now.AddDate(0, 0, -lookback).Format(dayFormat)
	raws, err := a.Repo.ListRawScores(ctx, run.UserID, run.ProjectID, run.Signal.ID, since)
	if err != nil {
		return fmt.Errorf("list raw scores: %w", err)
	}
	if len(raws) == 0 {
		log.Info("no raw scores in lookback window, smart score skipped")
		return nil
	}

	yesterday := now.AddDate(0, 0, -1).Format(dayFormat)
	smartKey := repository.ScoreKey{
		UserID:           run.UserID,
		ProjectID:        run.ProjectID,
		SignalStrengthID: run.Signal.ID,
		Day:              yesterday,
	}
	if !run.Force && run.TestRequestingUser == nil {
		exists, err := a.Repo.SmartScoreExists(ctx, smartKey)
		if err != nil {
			return fmt.Errorf("smart score existence check: %w", err)
		}
		if exists {
			log.Info("smart score already exists, nothing to do",
				zap.String("day", yesterday))
			return nil
		}
	}

	row := a.AI.GenerateSmartScore(ai.SmartScoreInput{
		User:               *user,
		Signal:             run.Signal,
		Config:             run.Config,
		Day:                yesterday,
		RawScores:          raws,
		TestRequestingUser: run.TestRequestingUser,
	})
	if err := a.Repo.SaveScore(ctx, row); err != nil {
		return err
	}
	if _, err := a.Repo.CleanupDuplicateScores(ctx, smartKey); err != nil {
		log.Warn("duplicate cleanup failed", zap.Error(err))
	}

	if run.TestRequestingUser == nil {
		if err := a.Repo.SetForumUserLastProcessed(ctx, run.UserID, run.ProjectID, now); err != nil {
			log.Warn("failed to record last processed time", zap.Error(err))
		}
	}

	log.Info("scoring run complete",
		zap.Int("days_with_activity", len(days)),
		zap.Int("raw_scores_in_window", len(raws)))
	return nil
}

func groupByDay(actions []forumclient.UserAction) map[string][]forumclient.UserAction {
	out := make(map[string][]forumclient.UserAction)
	for _, action := range actions {
		if action.CreatedAt.IsZero() {
			continue
		}
		d := action.CreatedAt.UTC().Format(dayFormat)
		out[d] = append(out[d], action)
	}
	return out
}

func toActivities(actions []forumclient.UserAction) []ai.Activity {
	out := make([]ai.Activity, 0, len(actions))
	for _, action := range actions {
		out = append(out, ai.Activity{
			CreatedAt: action.CreatedAt.UTC(),
			Kind:      kindOf(action.ActionType),
			Title:     action.Title,
			Excerpt:   action.Excerpt,
		})
	}
	return out
}

func kindOf(actionType int) string {
	switch actionType {
	case 1:
		return "like"
	case 4:
		return "topic"
	case 5:
		return "reply"
	case 6:
		return "response"
	default:
		return fmt.Sprintf("action_%d", actionType)
	}
}
