package forumadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"signalscore/internal/ai"
	forumclient "signalscore/internal/client/forum"
	"signalscore/internal/client/llm"
	"signalscore/internal/config"
	"signalscore/internal/models"
	"signalscore/internal/platform"
	"signalscore/internal/repository"
)

// memRepo is an in-memory repository with the same replace/insert semantics as
// the gorm store, so adapter runs behave like production end to end.
type memRepo struct {
	user   *models.ForumUser
	prompt *models.Prompt
	scores []models.UserSignalStrength

	livenessSet     int
	livenessCleared int
	lastProcessed   *time.Time

	saveErr     error
	livenessErr error
}

func (m *memRepo) GetSignalStrengthByName(ctx context.Context, name string) (*models.SignalStrength, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) EnsureSignalStrength(ctx context.Context, name string) (*models.SignalStrength, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) GetLatestPrompt(ctx context.Context, signalStrengthID uint64, promptType string) (*models.Prompt, error) {
	return m.prompt, nil
}

func (m *memRepo) GetSignalStrengthConfig(ctx context.Context, signalStrengthID uint64, projectID string) (*models.SignalStrengthConfig, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) GetForumUser(ctx context.Context, userID, projectID string) (*models.ForumUser, error) {
	return m.user, nil
}

func (m *memRepo) ListForumUsers(ctx context.Context) ([]models.ForumUser, error) {
	if m.user == nil {
		return nil, nil
	}
	return []models.ForumUser{*m.user}, nil
}

func (m *memRepo) SetForumUserLastProcessed(ctx context.Context, userID, projectID string, at time.Time) error {
	m.lastProcessed = &at
	return nil
}

func (m *memRepo) production(row models.UserSignalStrength) bool {
	return row.TestRequestingUser == nil && !row.IsLiveness()
}

func (m *memRepo) RawScoreExists(ctx context.Context, key repository.ScoreKey) (bool, error) {
	for _, row := range m.scores {
		if m.production(row) && row.RawValue != nil && matchKey(row, key) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) SmartScoreExists(ctx context.Context, key repository.ScoreKey) (bool, error) {
	for _, row := range m.scores {
		if m.production(row) && row.Value != nil && matchKey(row, key) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) SaveScore(ctx context.Context, item *models.UserSignalStrength) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if item.TestRequestingUser == nil {
		key := repository.ScoreKey{
			UserID:           item.UserID,
			ProjectID:        item.ProjectID,
			SignalStrengthID: item.SignalStrengthID,
			Day:              item.Day,
		}
		kept := m.scores[:0]
		for _, row := range m.scores {
			sameKind := (item.RawValue != nil && row.RawValue != nil) ||
				(item.Value != nil && row.Value != nil)
			if m.production(row) && sameKind && matchKey(row, key) {
				continue
			}
			kept = append(kept, row)
		}
		m.scores = kept
	}
	m.scores = append(m.scores, *item)
	return nil
}

func (m *memRepo) ListRawScores(ctx context.Context, userID, projectID string, signalStrengthID uint64, sinceDay string) ([]models.UserSignalStrength, error) {
	var out []models.UserSignalStrength
	for _, row := range m.scores {
		if !m.production(row) || row.RawValue == nil {
			continue
		}
		if row.UserID != userID || row.ProjectID != projectID || row.SignalStrengthID != signalStrengthID {
			continue
		}
		if row.Day < sinceDay {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memRepo) ListScores(ctx context.Context, params repository.ListScoresParams) ([]models.UserSignalStrength, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) CleanupDuplicateScores(ctx context.Context, key repository.ScoreKey) (int64, error) {
	return 0, nil
}

func (m *memRepo) SetLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64, day string) error {
	if m.livenessErr != nil {
		return m.livenessErr
	}
	m.livenessSet++
	m.scores = append(m.scores, models.UserSignalStrength{
		UserID:           userID,
		ProjectID:        projectID,
		SignalStrengthID: signalStrengthID,
		Day:              day,
		RequestID:        models.LivenessRequestID(userID, projectID, signalStrengthID),
	})
	return nil
}

func (m *memRepo) ClearLivenessMarker(ctx context.Context, userID, projectID string, signalStrengthID uint64) error {
	m.livenessCleared++
	kept := m.scores[:0]
	for _, row := range m.scores {
		if row.IsLiveness() && row.UserID == userID && row.ProjectID == projectID && row.SignalStrengthID == signalStrengthID {
			continue
		}
		kept = append(kept, row)
	}
	m.scores = kept
	return nil
}

func matchKey(row models.UserSignalStrength, key repository.ScoreKey) bool {
	return row.UserID == key.UserID &&
		row.ProjectID == key.ProjectID &&
		row.SignalStrengthID == key.SignalStrengthID &&
		row.Day == key.Day
}

func (m *memRepo) count(pred func(models.UserSignalStrength) bool) int {
	n := 0
	for _, row := range m.scores {
		if pred(row) {
			n++
		}
	}
	return n
}

type stubFetcher struct {
	actions []forumclient.UserAction
	err     error
}

func (s *stubFetcher) FetchUserActivity(ctx context.Context, username string, limit int) ([]forumclient.UserAction, error) {
	return s.actions, s.err
}

type stubLLM struct {
	resp  string
	err   error
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Text: s.resp}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func testActions() []forumclient.UserAction {
	return []forumclient.UserAction{
		{ActionType: 4, CreatedAt: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), Title: "Launch thread", Excerpt: "<p>we shipped</p>"},
		{ActionType: 5, CreatedAt: time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC), Title: "Re: launch", Excerpt: "nice"},
		{ActionType: 1, CreatedAt: time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC), Title: "Old post"},
	}
}

func newAdapter(repo *memRepo, fetcher ActivityFetcher, client llm.Client) *Adapter {
	return &Adapter{
		Repo:    repo,
		Fetcher: fetcher,
		AI: &ai.Orchestrator{
			Repo:     repo,
			LLM:      client,
			Logger:   zap.NewNop(),
			Defaults: config.LLMConfig{Model: "gpt-4o-mini", Temperature: 0.2, MaxTokens: 1024, MaxContentChars: 12000},
		},
		Logger:     zap.NewNop(),
		FetchLimit: 200,
		Now:        fixedNow,
	}
}

func testRun() platform.Run {
	return platform.Run{
		UserID:    "u1",
		ProjectID: "p1",
		Signal:    models.SignalStrength{ID: 7, Name: "forum_engagement"},
		Config: models.SignalStrengthConfig{
			SignalStrengthID: 7,
			ProjectID:        "p1",
			Enabled:          true,
			MaxValue:         10,
			PreviousDays:     30,
		},
	}
}

func testRepo() *memRepo {
	return &memRepo{
		user:   &models.ForumUser{UserID: "u1", ProjectID: "p1", Username: "alice", DisplayName: "Alice", Verified: true},
		prompt: &models.Prompt{ID: 1, SignalStrengthID: 7, Type: models.PromptTypeRaw, Text: "Rate ${username}: ${content}"},
	}
}

func TestProcessUser_EndToEnd(t *testing.T) {
	repo := testRepo()
	client := &stubLLM{resp: `{"value": 8, "summary": "active day"}`}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	if err := a.ProcessUser(context.Background(), testRun()); err != nil {
		t.Fatalf("err=%v", err)
	}

	rawCount := repo.count(func(r models.UserSignalStrength) bool { return r.RawValue != nil })
	if rawCount != 2 {
		t.Fatalf("raw rows=%d want=2", rawCount)
	}
	if client.calls != 2 {
		t.Fatalf("llm calls=%d want=2 (one per active day)", client.calls)
	}

	var smart *models.UserSignalStrength
	for i := range repo.scores {
		if repo.scores[i].Value != nil {
			smart = &repo.scores[i]
		}
	}
	if smart == nil {
		t.Fatalf("smart row missing")
	}
	if smart.Day != "2026-08-29" {
		t.Fatalf("smart day=%q want=2026-08-29", smart.Day)
	}
	// Two qualifying days at 8/10: round(0.8 * 100 * 0.7) = 56.
	if *smart.Value != 56 {
		t.Fatalf("smart value=%v want=56", *smart.Value)
	}
	if smart.MaxValue != 100 {
		t.Fatalf("smart max_value=%v want=100", smart.MaxValue)
	}

	if repo.livenessSet != 1 || repo.livenessCleared != 1 {
		t.Fatalf("liveness set=%d cleared=%d want=1/1", repo.livenessSet, repo.livenessCleared)
	}
	if n := repo.count(models.UserSignalStrength.IsLiveness); n != 0 {
		t.Fatalf("liveness rows left behind: %d", n)
	}
	if repo.lastProcessed == nil || !repo.lastProcessed.Equal(fixedNow()) {
		t.Fatalf("last_processed_at=%v", repo.lastProcessed)
	}
}

func TestProcessUser_SecondRunIsIdempotent(t *testing.T) {
	repo := testRepo()
	client := &stubLLM{resp: `{"value": 8, "summary": "active day"}`}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	run := testRun()
	if err := a.ProcessUser(context.Background(), run); err != nil {
		t.Fatalf("first run err=%v", err)
	}
	before := len(repo.scores)

	if err := a.ProcessUser(context.Background(), run); err != nil {
		t.Fatalf("second run err=%v", err)
	}
	if len(repo.scores) != before {
		t.Fatalf("rows=%d want=%d, second run must not add rows", len(repo.scores), before)
	}
	if client.calls != 2 {
		t.Fatalf("llm calls=%d want=2, existing days must not be re-scored", client.calls)
	}
}

func TestProcessUser_ForceRegeneratesSmartScore(t *testing.T) {
	repo := testRepo()
	client := &stubLLM{resp: `{"value": 8, "summary": "active day"}`}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	run := testRun()
	if err := a.ProcessUser(context.Background(), run); err != nil {
		t.Fatalf("first run err=%v", err)
	}
	before := len(repo.scores)

	run.Force = true
	if err := a.ProcessUser(context.Background(), run); err != nil {
		t.Fatalf("forced run err=%v", err)
	}
	if len(repo.scores) != before {
		t.Fatalf("rows=%d want=%d, forced smart score must replace not duplicate", len(repo.scores), before)
	}
	smartCount := repo.count(func(r models.UserSignalStrength) bool { return r.Value != nil })
	if smartCount != 1 {
		t.Fatalf("smart rows=%d want=1", smartCount)
	}
}

func TestProcessUser_NoLinkedAccountSkips(t *testing.T) {
	repo := testRepo()
	repo.user = nil
	client := &stubLLM{resp: `{"value": 1, "summary": "s"}`}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	if err := a.ProcessUser(context.Background(), testRun()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if repo.livenessSet != 0 {
		t.Fatalf("liveness set before user check")
	}
	if client.calls != 0 || len(repo.scores) != 0 {
		t.Fatalf("work performed for unlinked account")
	}
}

func TestProcessUser_FetchErrorEndsRunCleanly(t *testing.T) {
	repo := testRepo()
	a := newAdapter(repo, &stubFetcher{err: errors.New("forum 502")}, &stubLLM{})

	if err := a.ProcessUser(context.Background(), testRun()); err != nil {
		t.Fatalf("fetch failure must not surface as run error, got %v", err)
	}
	if repo.livenessSet != 1 || repo.livenessCleared != 1 {
		t.Fatalf("liveness set=%d cleared=%d want=1/1", repo.livenessSet, repo.livenessCleared)
	}
	if n := repo.count(models.UserSignalStrength.IsLiveness); n != 0 {
		t.Fatalf("liveness rows left behind: %d", n)
	}
}

func TestProcessUser_MissingPromptAbortsRun(t *testing.T) {
	repo := testRepo()
	repo.prompt = nil
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, &stubLLM{})

	err := a.ProcessUser(context.Background(), testRun())
	var cfgErr *ai.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err=%T want *ai.ConfigurationError", err)
	}
	if repo.livenessCleared != 1 {
		t.Fatalf("liveness not cleared on abort")
	}
	if n := repo.count(models.UserSignalStrength.IsLiveness); n != 0 {
		t.Fatalf("liveness rows left behind: %d", n)
	}
}

func TestProcessUser_LLMErrorSkipsDaysButClearsLiveness(t *testing.T) {
	repo := testRepo()
	client := &stubLLM{err: errors.New("rate limited")}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	if err := a.ProcessUser(context.Background(), testRun()); err != nil {
		t.Fatalf("per-day LLM failures must not surface as run error, got %v", err)
	}
	if n := repo.count(func(r models.UserSignalStrength) bool { return r.RawValue != nil }); n != 0 {
		t.Fatalf("raw rows=%d want=0", n)
	}
	if n := repo.count(func(r models.UserSignalStrength) bool { return r.Value != nil }); n != 0 {
		t.Fatalf("smart rows=%d want=0, no raw scores to aggregate", n)
	}
	if repo.livenessCleared != 1 {
		t.Fatalf("liveness not cleared")
	}
}

func TestProcessUser_TestRunLeavesProductionUntouched(t *testing.T) {
	repo := testRepo()
	client := &stubLLM{resp: `{"value": 8, "summary": "active day"}`}
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, client)

	if err := a.ProcessUser(context.Background(), testRun()); err != nil {
		t.Fatalf("production run err=%v", err)
	}
	prodRows := len(repo.scores)
	prodCalls := client.calls

	run := testRun()
	tester := "qa"
	run.TestRequestingUser = &tester
	if err := a.ProcessUser(context.Background(), run); err != nil {
		t.Fatalf("test run err=%v", err)
	}

	// Test runs bypass existence checks and insert alongside production rows.
	if client.calls != prodCalls+2 {
		t.Fatalf("llm calls=%d want=%d, test run must re-score every day", client.calls, prodCalls+2)
	}
	testRows := repo.count(func(r models.UserSignalStrength) bool { return r.TestRequestingUser != nil })
	if testRows != 3 {
		t.Fatalf("test rows=%d want=3 (2 raw + 1 smart)", testRows)
	}
	prodAfter := repo.count(func(r models.UserSignalStrength) bool { return r.TestRequestingUser == nil })
	if prodAfter != prodRows {
		t.Fatalf("production rows=%d want=%d, test run displaced production data", prodAfter, prodRows)
	}
}

func TestProcessUser_LivenessSetFailureIsFatal(t *testing.T) {
	repo := testRepo()
	repo.livenessErr = errors.New("db down")
	a := newAdapter(repo, &stubFetcher{actions: testActions()}, &stubLLM{})

	if err := a.ProcessUser(context.Background(), testRun()); err == nil {
		t.Fatalf("expected error when marker cannot be written")
	}
}

func TestGroupByDay(t *testing.T) {
	byDay := groupByDay(testActions())
	if len(byDay) != 2 {
		t.Fatalf("days=%d want=2", len(byDay))
	}
	if len(byDay["2026-08-29"]) != 2 {
		t.Fatalf("2026-08-29 actions=%d want=2", len(byDay["2026-08-29"]))
	}
	if len(byDay["2026-08-27"]) != 1 {
		t.Fatalf("2026-08-27 actions=%d want=1", len(byDay["2026-08-27"]))
	}
}

func TestKindOf(t *testing.T) {
	cases := map[int]string{1: "like", 4: "topic", 5: "reply", 6: "response", 99: "action_99"}
	for actionType, want := range cases {
		if got := kindOf(actionType); got != want {
			t.Fatalf("kindOf(%d)=%q want=%q", actionType, got, want)
		}
	}
}
