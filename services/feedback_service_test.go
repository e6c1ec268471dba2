// services/feedback_service_test.go
package services

import (
	"fmt"
	"sync"
	"testing"

	"arena-feedback-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeedback(matchIDs ...string) *FeedbackService {
	s := NewFeedbackService(nil)
	for _, id := range matchIDs {
		s.Register(id)
	}
	return s
}

func TestReact_InsertLike(t *testing.T) {
	s := newTestFeedback("m1")

	state, err := s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Likes)
	assert.Equal(t, 0, state.Dislikes)
	assert.Equal(t, models.InteractionLike, state.UserReaction)
}

func TestReact_ToggleOff(t *testing.T) {
	s := newTestFeedback("m1")

	_, err := s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)

	state, err := s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Likes, "repeating the same reaction should clear it")
	assert.Empty(t, state.UserReaction)

	// Toggling again from cleared re-inserts.
	state, err = s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Likes)
}

func TestReact_SwitchBuckets(t *testing.T) {
	s := newTestFeedback("m1")

	_, err := s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)

	state, err := s.React("m1", "alice", models.InteractionDislike)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Likes, "switching must decrement the old bucket")
	assert.Equal(t, 1, state.Dislikes, "switching must increment the new bucket")
	assert.Equal(t, models.InteractionDislike, state.UserReaction)
}

func TestReact_Validation(t *testing.T) {
	s := newTestFeedback("m1")

	_, err := s.React("m1", "alice", "applaud")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = s.React("m1", "", models.InteractionLike)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.React("ghost", "alice", models.InteractionLike)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReact_ConcurrentUsersAllCounted(t *testing.T) {
	s := newTestFeedback("m1")

	const users = 100
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := models.InteractionLike
			if i%2 == 1 {
				kind = models.InteractionDislike
			}
			_, err := s.React("m1", fmt.Sprintf("user-%d", i), kind)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot("m1")
	require.NoError(t, err)
	assert.Equal(t, users/2, snap.Likes, "no like may be lost under concurrency")
	assert.Equal(t, users/2, snap.Dislikes, "no dislike may be lost under concurrency")
}

func TestReact_ConcurrentTogglesLandOnValidState(t *testing.T) {
	s := newTestFeedback("m1")

	// One user hammering toggle: the count can only ever be 0 or 1.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.React("m1", "alice", models.InteractionLike)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := s.Snapshot("m1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Likes, "even toggle count must land back on zero")
}

func TestComment_SequenceMonotonic(t *testing.T) {
	s := newTestFeedback("m1")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Comment("m1", fmt.Sprintf("user-%d", i), "nice rebuttal", nil, false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot("m1")
	require.NoError(t, err)
	require.Len(t, snap.Comments, 40)

	seen := make(map[int64]bool)
	for i, c := range snap.Comments {
		assert.False(t, seen[c.Seq], "sequence %d assigned twice", c.Seq)
		seen[c.Seq] = true
		if i > 0 {
			assert.Greater(t, c.Seq, snap.Comments[i-1].Seq, "snapshot must list comments in sequence order")
		}
	}
}

func TestComment_AnonymousAndIdentity(t *testing.T) {
	s := newTestFeedback("m1")

	// No identity and no anonymous flag is rejected.
	_, err := s.Comment("m1", "", "drive-by", nil, false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Explicit anonymous comment carries no author.
	c, err := s.Comment("m1", "alice", "hot take", []string{"methodology"}, true)
	require.NoError(t, err)
	assert.True(t, c.IsAnonymous)
	assert.Empty(t, c.AuthorID)
	assert.Equal(t, []string{"methodology"}, c.Tags)

	// Whitespace-only text is rejected.
	_, err = s.Comment("m1", "alice", "   ", nil, false)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestFeedback("m1")

	_, err := s.Comment("m1", "alice", "first", nil, false)
	require.NoError(t, err)

	snap, err := s.Snapshot("m1")
	require.NoError(t, err)
	snap.Comments[0].Text = "mutated"

	again, err := s.Snapshot("m1")
	require.NoError(t, err)
	assert.Equal(t, "first", again.Comments[0].Text, "snapshot mutation must not leak back")
}

func TestMatchesAreIndependent(t *testing.T) {
	s := newTestFeedback("m1", "m2")

	_, err := s.React("m1", "alice", models.InteractionLike)
	require.NoError(t, err)

	snap, err := s.Snapshot("m2")
	require.NoError(t, err)
	assert.Zero(t, snap.Likes)
	assert.Zero(t, snap.Dislikes)
}
