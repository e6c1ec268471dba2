// services/channel_client_test.go
package services

import (
	"encoding/json"
	"testing"

	"arena-feedback-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, c *ChannelClient, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, c.Apply(msgType, raw))
}

func TestApply_InitialReplacesEverything(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")

	apply(t, c, MessageFeedbackUpdate, CountsPayload{Likes: 9, Dislikes: 9})
	apply(t, c, MessageInitial, InitialPayload{
		Feedback:    FeedbackSnapshot{Likes: 3, Dislikes: 1, Comments: []models.Comment{{Seq: 1, Text: "hi"}}},
		Performance: []models.RankingEntry{{PaperID: "paper-a", Rank: 1}},
	})

	state := c.State()
	assert.Equal(t, 3, state.Feedback.Likes, "initial must overwrite stale local state")
	assert.Equal(t, 1, state.Feedback.Dislikes)
	require.Len(t, state.Feedback.Comments, 1)
	require.Len(t, state.Performance, 1)
}

func TestApply_FeedbackAppendsComment(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	apply(t, c, MessageInitial, InitialPayload{
		Feedback: FeedbackSnapshot{Comments: []models.Comment{{Seq: 1, Text: "first"}}},
	})

	apply(t, c, MessageFeedback, models.Comment{Seq: 2, Text: "second"})

	state := c.State()
	require.Len(t, state.Feedback.Comments, 2)
	assert.Equal(t, "second", state.Feedback.Comments[1].Text)
}

func TestApply_FeedbackUpdateOnlyTouchesCounts(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	apply(t, c, MessageInitial, InitialPayload{
		Feedback:    FeedbackSnapshot{Likes: 1, Comments: []models.Comment{{Seq: 1, Text: "kept"}}},
		Performance: []models.RankingEntry{{PaperID: "paper-a", Rank: 1}},
	})

	apply(t, c, MessageFeedbackUpdate, CountsPayload{Likes: 2, Dislikes: 1})

	state := c.State()
	assert.Equal(t, 2, state.Feedback.Likes)
	assert.Equal(t, 1, state.Feedback.Dislikes)
	require.Len(t, state.Feedback.Comments, 1, "count updates must not disturb the comment log")
	require.Len(t, state.Performance, 1, "count updates must not disturb performance")
}

func TestApply_PerformanceReplacesEntries(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	apply(t, c, MessagePerformance, []models.RankingEntry{{PaperID: "paper-a", Rank: 2}})
	apply(t, c, MessagePerformance, []models.RankingEntry{{PaperID: "paper-a", Rank: 1}, {PaperID: "paper-b", Rank: 2}})

	state := c.State()
	require.Len(t, state.Performance, 2)
	assert.Equal(t, 1, state.Performance[0].Rank)
}

func TestApply_UnknownTypeRejectedWithoutStateChange(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	apply(t, c, MessageFeedbackUpdate, CountsPayload{Likes: 5})

	err := c.Apply("heartbeat", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.Equal(t, 5, c.State().Feedback.Likes)
}

func TestApply_SnapshotsAreImmutable(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	apply(t, c, MessageInitial, InitialPayload{
		Feedback: FeedbackSnapshot{Comments: []models.Comment{{Seq: 1, Text: "first"}}},
	})
	before := c.State()

	apply(t, c, MessageFeedback, models.Comment{Seq: 2, Text: "second"})

	assert.Len(t, before.Feedback.Comments, 1, "a held state must not change under later messages")
	assert.Len(t, c.State().Feedback.Comments, 2)
}

func TestApply_ObserverSeesEveryReplacement(t *testing.T) {
	c := NewChannelClient("ws://example/ws/matches/m1")
	var seen []int
	c.OnState = func(s ClientState) { seen = append(seen, s.Feedback.Likes) }

	apply(t, c, MessageFeedbackUpdate, CountsPayload{Likes: 1})
	apply(t, c, MessageFeedbackUpdate, CountsPayload{Likes: 2})

	assert.Equal(t, []int{1, 2}, seen)
}
