// services/match_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"arena-feedback-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// runnerFunc adapts a func to AgentRunner for tests.
type runnerFunc func(ctx context.Context, match models.Match) (MatchOutcome, error)

func (f runnerFunc) Run(ctx context.Context, match models.Match) (MatchOutcome, error) {
	return f(ctx, match)
}

func comparisonSpec() MatchSpec {
	return MatchSpec{
		Agent1ID:    "agent-1",
		Agent2ID:    "agent-2",
		JudgeID:     "judge",
		Paper1ID:    "paper-a",
		Paper2ID:    "paper-b",
		Category:    "nlp",
		Subcategory: "summarization",
		Year:        2025,
	}
}

func scoringRunner(scoreA, scoreB float64) AgentRunner {
	return runnerFunc(func(ctx context.Context, match models.Match) (MatchOutcome, error) {
		scores := map[string]float64{match.Paper1ID: scoreA}
		if match.Comparison() {
			scores[*match.Paper2ID] = scoreB
		}
		return MatchOutcome{
			Reviews: []models.Review{
				{ID: match.ID + "-r1", MatchID: match.ID, AgentID: match.Agent1ID, PaperID: match.Paper1ID, Content: "solid method", OverallScore: scoreA},
			},
			PaperScores: scores,
		}, nil
	})
}

// awaitCompletion wires a listener before Create and blocks until the
// terminal event arrives.
func awaitCompletion(t *testing.T, s *MatchService, create func() (models.Match, error)) models.Match {
	t.Helper()
	done := make(chan models.Match, 1)
	s.OnCompletion(func(m models.Match) { done <- m })

	_, err := create()
	require.NoError(t, err)

	select {
	case m := <-done:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("match never reached a terminal state")
		return models.Match{}
	}
}

func TestCreate_ValidationRejections(t *testing.T) {
	feedback := NewFeedbackService(nil)
	s := NewMatchService(nil, scoringRunner(80, 70), feedback)

	events := 0
	s.OnCompletion(func(models.Match) { events++ })

	cases := []struct {
		name   string
		mutate func(*MatchSpec)
	}{
		{"missing judge", func(m *MatchSpec) { m.JudgeID = "" }},
		{"duplicate agent", func(m *MatchSpec) { m.Agent2ID = m.Agent1ID }},
		{"judge doubles as agent", func(m *MatchSpec) { m.JudgeID = m.Agent1ID }},
		{"same paper twice", func(m *MatchSpec) { m.Paper2ID = m.Paper1ID }},
		{"half a comparison", func(m *MatchSpec) { m.Paper2ID = "" }},
		{"both modes at once", func(m *MatchSpec) { m.PaperID = "paper-c" }},
		{"no papers", func(m *MatchSpec) { m.Paper1ID = ""; m.Paper2ID = "" }},
		{"missing partition", func(m *MatchSpec) { m.Year = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := comparisonSpec()
			tc.mutate(&spec)
			_, err := s.Create(spec)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	assert.Zero(t, events, "rejected specs must not emit completion events")
}

func TestCreate_CatalogLookupFailureRejectsMatch(t *testing.T) {
	// A pool pointed at a dead address: connections fail at query time.
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=arena dbname=arena sslmode=disable"), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	feedback := NewFeedbackService(nil)
	s := NewMatchService(db, scoringRunner(80, 70), feedback)

	events := 0
	s.OnCompletion(func(models.Match) { events++ })

	_, err = s.Create(comparisonSpec())
	require.Error(t, err, "an unverifiable ref must not be admitted")

	// The failure is the lookup's, not the caller's.
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Zero(t, events, "a rejected spec must not emit completion events")
}

func TestCreate_CompletesWithWinner(t *testing.T) {
	feedback := NewFeedbackService(nil)
	s := NewMatchService(nil, scoringRunner(84, 71), feedback)

	done := awaitCompletion(t, s, func() (models.Match, error) { return s.Create(comparisonSpec()) })

	assert.Equal(t, models.MatchStatusCompleted, done.Status)
	require.NotNil(t, done.WinnerPaperID)
	assert.Equal(t, "paper-a", *done.WinnerPaperID)
	assert.False(t, done.Placeholder)
	assert.NotNil(t, done.CompletedAt)

	// The feedback partition exists as soon as the match does.
	_, err := feedback.Snapshot(done.ID)
	assert.NoError(t, err)

	got, err := s.Get(done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
}

func TestCreate_EqualScoresAreADraw(t *testing.T) {
	feedback := NewFeedbackService(nil)
	s := NewMatchService(nil, scoringRunner(75, 75), feedback)

	done := awaitCompletion(t, s, func() (models.Match, error) { return s.Create(comparisonSpec()) })

	assert.Equal(t, models.MatchStatusCompleted, done.Status)
	assert.Nil(t, done.WinnerPaperID, "equal judge scores must resolve as a draw")
}

func TestCreate_SingleModeHasNoWinner(t *testing.T) {
	feedback := NewFeedbackService(nil)
	s := NewMatchService(nil, scoringRunner(92, 0), feedback)

	spec := comparisonSpec()
	spec.Paper1ID, spec.Paper2ID = "", ""
	spec.PaperID = "paper-solo"

	done := awaitCompletion(t, s, func() (models.Match, error) { return s.Create(spec) })

	assert.Equal(t, models.MatchStatusCompleted, done.Status)
	assert.Nil(t, done.WinnerPaperID)
	assert.Equal(t, []string{"paper-solo"}, done.PaperIDs())
	assert.InDelta(t, 92.0, done.Paper1Score, 1e-9)
}

func TestCreate_RunnerOutageResolvesWithPlaceholder(t *testing.T) {
	feedback := NewFeedbackService(nil)
	down := runnerFunc(func(ctx context.Context, match models.Match) (MatchOutcome, error) {
		return MatchOutcome{}, errors.New("dial tcp: connection refused: " + ErrAgentUnavailable.Error())
	})
	s := NewMatchService(nil, down, feedback)

	done := awaitCompletion(t, s, func() (models.Match, error) { return s.Create(comparisonSpec()) })

	assert.Equal(t, models.MatchStatusFailed, done.Status)
	assert.True(t, done.Placeholder)
	assert.Nil(t, done.WinnerPaperID)
	assert.Zero(t, done.Paper1Score)
	assert.Zero(t, done.Paper2Score)
	assert.NotNil(t, done.CompletedAt, "placeholder resolution is still terminal")

	// Two agents × two papers: every slot gets a marked placeholder review.
	require.Len(t, done.Reviews, 4)
	for _, r := range done.Reviews {
		assert.Equal(t, placeholderReview, r.Content)
		assert.Zero(t, r.OverallScore)
	}
}

func TestPlaceholderFeedsRankingPipeline(t *testing.T) {
	feedback := NewFeedbackService(nil)
	down := runnerFunc(func(ctx context.Context, match models.Match) (MatchOutcome, error) {
		return MatchOutcome{}, ErrAgentUnavailable
	})
	s := NewMatchService(nil, down, feedback)

	leaderboard := NewLeaderboardService(nil)
	broadcast := make(chan struct{}, 1)
	leaderboard.SetNotifier(notifierFunc(func(string, string, int, []models.RankingEntry) {
		broadcast <- struct{}{}
	}))
	s.OnCompletion(leaderboard.HandleCompletion)

	_, err := s.Create(comparisonSpec())
	require.NoError(t, err)

	select {
	case <-broadcast:
	case <-time.After(2 * time.Second):
		t.Fatal("failed match never reached the ranking aggregator")
	}
	assert.Empty(t, leaderboard.Rankings("nlp", "summarization", 2025),
		"placeholder outcomes must not enter the table")
}

func TestGet_UnknownMatch(t *testing.T) {
	s := NewMatchService(nil, scoringRunner(1, 2), NewFeedbackService(nil))
	_, err := s.Get("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailStale_ForcesPlaceholder(t *testing.T) {
	feedback := NewFeedbackService(nil)
	blocked := make(chan struct{})
	hang := runnerFunc(func(ctx context.Context, match models.Match) (MatchOutcome, error) {
		<-blocked
		return MatchOutcome{}, ErrAgentUnavailable
	})
	s := NewMatchService(nil, hang, feedback)
	defer close(blocked)

	done := make(chan models.Match, 1)
	s.OnCompletion(func(m models.Match) { done <- m })

	created, err := s.Create(comparisonSpec())
	require.NoError(t, err)

	// Zero max age: the in-flight match is immediately stale.
	s.FailStale(0)

	select {
	case m := <-done:
		assert.Equal(t, created.ID, m.ID)
		assert.Equal(t, models.MatchStatusFailed, m.Status)
		assert.True(t, m.Placeholder)
	case <-time.After(2 * time.Second):
		t.Fatal("stale match was not force-resolved")
	}

	// The hung runner returning later must not resurrect the match.
	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusFailed, got.Status)
}
