package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"asteroid-arcade/internal/model"
	"asteroid-arcade/internal/repository"
)

// fakeSessionStore is an in-memory SessionStore.
type fakeSessionStore struct {
	sessions map[string]*model.GameSession
	configs  []string
	nextID   int64
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.GameSession)}
}

func (f *fakeSessionStore) CreateSession(_ context.Context, userID int64) (*model.GameSession, error) {
	f.nextID++
	session := &model.GameSession{
		ID:               f.nextID,
		SessionID:        fmt.Sprintf("session_%d", f.nextID),
		UserID:           userID,
		StartTime:        time.Now().UTC(),
		LastActive:       time.Now().UTC(),
		DifficultyFactor: repository.BaseDifficulty,
	}
	f.sessions[session.SessionID] = session
	return session, nil
}

func (f *fakeSessionStore) FindSession(_ context.Context, sessionID string) (*model.GameSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeSessionStore) RefreshActivity(ctx context.Context, sessionID string) (*model.GameSession, error) {
	session, err := f.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.LastActive = time.Now().UTC()
	session.DifficultyFactor = repository.DifficultyFor(session.StartTime, time.Now().UTC())
	return session, nil
}

func (f *fakeSessionStore) RecordConfig(_ context.Context, configID string, _ int64, _ string, _ time.Time) error {
	f.configs = append(f.configs, configID)
	return nil
}

// fakeScoreStore is an in-memory ScoreStore.
type fakeScoreStore struct {
	scores   []*model.Score
	topCalls int
}

func (f *fakeScoreStore) SubmitScore(_ context.Context, userID, score, level, playTime int64) (*model.Score, error) {
	s := &model.Score{
		ID:        int64(len(f.scores) + 1),
		UserID:    userID,
		Score:     score,
		Level:     level,
		PlayTime:  playTime,
		CreatedAt: time.Now().UTC(),
	}
	f.scores = append(f.scores, s)
	return s, nil
}

func (f *fakeScoreStore) TopScores(_ context.Context, limit int) ([]*model.ScoreWithUsername, error) {
	f.topCalls++
	out := make([]*model.ScoreWithUsername, 0, limit)
	for _, s := range f.scores {
		out = append(out, &model.ScoreWithUsername{ID: s.ID, Username: "player", Score: s.Score})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeScoreStore) UserScores(_ context.Context, userID int64, limit int) ([]*model.Score, error) {
	var out []*model.Score
	for _, s := range f.scores {
		if s.UserID == userID && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeScoreCache is an in-memory ScoreCache.
type fakeScoreCache struct {
	scores []*model.ScoreWithUsername
	warm   bool
}

func (f *fakeScoreCache) GetTopScores(context.Context) ([]*model.ScoreWithUsername, bool) {
	if !f.warm {
		return nil, false
	}
	return f.scores, true
}

func (f *fakeScoreCache) SetTopScores(_ context.Context, scores []*model.ScoreWithUsername) {
	f.scores, f.warm = scores, true
}

func (f *fakeScoreCache) Invalidate(context.Context) {
	f.scores, f.warm = nil, false
}

func TestGameService_NewSession(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := NewGameService(sessions, &fakeScoreStore{}, nil)

	cfg, err := svc.NewSession(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, ConfigVersion, cfg.Version)
	assert.Contains(t, cfg.ConfigID, "config_")
	assert.NotEmpty(t, cfg.SessionID)
	assert.Equal(t, int64(60), cfg.FPS)

	// Fresh sessions start at base difficulty.
	assert.Equal(t, int64(5), cfg.Asteroids.InitialCount)
	assert.Equal(t, int64(10), cfg.Scoring.PointsPerAsteroid)

	// The config id is persisted for audit.
	require.Len(t, sessions.configs, 1)
	assert.Equal(t, cfg.ConfigID, sessions.configs[0])

	// Expiration lands about five minutes out.
	expiresIn := time.Until(time.UnixMilli(cfg.ExpirationTime))
	assert.Greater(t, expiresIn, 4*time.Minute)
	assert.LessOrEqual(t, expiresIn, 5*time.Minute)
}

func TestGameService_ConfigForSession_Ownership(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := NewGameService(sessions, &fakeScoreStore{}, nil)
	ctx := context.Background()

	cfg, err := svc.NewSession(ctx, 42)
	require.NoError(t, err)

	refreshed, err := svc.ConfigForSession(ctx, 42, cfg.SessionID)
	require.NoError(t, err)
	assert.Equal(t, cfg.SessionID, refreshed.SessionID)
	assert.NotEqual(t, cfg.ConfigID, refreshed.ConfigID)

	_, err = svc.ConfigForSession(ctx, 7, cfg.SessionID)
	assert.ErrorIs(t, err, ErrNotSessionOwner)

	_, err = svc.ConfigForSession(ctx, 42, "session_unknown")
	assert.True(t, IsNotFound(err))
}

func TestGameService_SubmitScore(t *testing.T) {
	sessions := newFakeSessionStore()
	scores := &fakeScoreStore{}
	svc := NewGameService(sessions, scores, nil)
	ctx := context.Background()

	cfg, err := svc.NewSession(ctx, 42)
	require.NoError(t, err)

	score, err := svc.SubmitScore(ctx, 42, cfg.SessionID, 1200, 3, 180)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), score.Score)

	_, err = svc.SubmitScore(ctx, 7, cfg.SessionID, 1200, 3, 180)
	assert.ErrorIs(t, err, ErrNotSessionOwner)

	_, err = svc.SubmitScore(ctx, 42, "session_unknown", 1200, 3, 180)
	assert.True(t, IsNotFound(err))
}

func TestGameService_TopScoresWithoutCache(t *testing.T) {
	scores := &fakeScoreStore{}
	svc := NewGameService(newFakeSessionStore(), scores, nil)
	ctx := context.Background()

	_, err := scores.SubmitScore(ctx, 42, 100, 1, 60)
	require.NoError(t, err)

	top, err := svc.TopScores(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 1)
	// With no cache wired, every call goes to the store.
	_, err = svc.TopScores(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, scores.topCalls)
}

func TestGameService_TopScoresCacheServesAnyLimit(t *testing.T) {
	sessions := newFakeSessionStore()
	scores := &fakeScoreStore{}
	lb := &fakeScoreCache{}
	svc := NewGameService(sessions, scores, lb)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := scores.SubmitScore(ctx, int64(i+1), int64(100+i), 1, 60)
		require.NoError(t, err)
	}

	// A small request warms the cache.
	top, err := svc.TopScores(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)

	// A larger request hits the same cache entry and still gets the
	// rows it asked for, not the first caller's slice.
	top, err = svc.TopScores(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 10)
	assert.Equal(t, 1, scores.topCalls)

	// The cache holds the full-size list.
	assert.Len(t, lb.scores, 20)

	// A new score drops the entry; the next read goes to the store.
	cfg, err := svc.NewSession(ctx, 42)
	require.NoError(t, err)
	_, err = svc.SubmitScore(ctx, 42, cfg.SessionID, 999, 2, 90)
	require.NoError(t, err)
	assert.False(t, lb.warm)

	_, err = svc.TopScores(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, scores.topCalls)
}

func TestBuildConfig_DifficultyScaling(t *testing.T) {
	expiration := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	session := func(d float64) *model.GameSession {
		return &model.GameSession{SessionID: "session_x", DifficultyFactor: d}
	}

	base := BuildConfig(session(1.0), "config_a", expiration)
	assert.Equal(t, int64(5), base.Asteroids.InitialCount)
	assert.Equal(t, int64(1), base.Asteroids.Speed)
	assert.Equal(t, int64(10), base.Scoring.PointsPerAsteroid)
	assert.Equal(t, expiration.UnixMilli(), base.ExpirationTime)

	max := BuildConfig(session(3.0), "config_b", expiration)
	assert.Equal(t, int64(15), max.Asteroids.InitialCount)
	assert.Equal(t, int64(3), max.Asteroids.Speed)
	assert.Equal(t, int64(30), max.Scoring.PointsPerAsteroid)

	// Scaling truncates toward zero, it never rounds up.
	mid := BuildConfig(session(1.19), "config_c", expiration)
	assert.Equal(t, int64(5), mid.Asteroids.InitialCount)
	assert.Equal(t, int64(11), mid.Scoring.PointsPerAsteroid)
}

// TestBuildConfigScalingProperty checks that for any difficulty factor
// in the valid range, the scaled gameplay parameters stay inside their
// bounds, the fixed parameters never move, and a harder session is
// never rewarded less per asteroid.
func TestBuildConfigScalingProperty(t *testing.T) {
	expiration := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		d := rapid.Float64Range(repository.BaseDifficulty, repository.MaxDifficulty).Draw(t, "difficulty")
		cfg := BuildConfig(&model.GameSession{SessionID: "s", DifficultyFactor: d}, "c", expiration)

		if cfg.Asteroids.InitialCount < 5 || cfg.Asteroids.InitialCount > 15 {
			t.Fatalf("initial count %d out of range for difficulty %f", cfg.Asteroids.InitialCount, d)
		}
		if cfg.Scoring.PointsPerAsteroid < 10 || cfg.Scoring.PointsPerAsteroid > 30 {
			t.Fatalf("points per asteroid %d out of range for difficulty %f", cfg.Scoring.PointsPerAsteroid, d)
		}

		if cfg.Asteroids.Size != 30 || cfg.Bullets.MaxCount != 10 || cfg.Scoring.LevelMultiplier != 1.5 {
			t.Fatalf("fixed parameters moved with difficulty %f", d)
		}

		easier := BuildConfig(&model.GameSession{SessionID: "s", DifficultyFactor: repository.BaseDifficulty}, "c", expiration)
		if cfg.Scoring.PointsPerAsteroid < easier.Scoring.PointsPerAsteroid {
			t.Fatalf("difficulty %f rewards less than base difficulty", d)
		}
	})
}
