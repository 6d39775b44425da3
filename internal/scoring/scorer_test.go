package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weizhiyuan62/zhilan/infrastructure/judge"
	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/testutils"
)

func makeItems(t *testing.T, n int) []domain.Item {
	t.Helper()
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.NewItem(
			fmt.Sprintf("AI breakthrough number %d", i),
			fmt.Sprintf("Body text describing development %d in some detail.", i),
			"TestWire",
			fmt.Sprintf("https://example.com/articles/%d", i),
			nil,
		))
	}
	return items
}

func newScorer(t *testing.T, mock *testutils.MockJudgeClient, store *testutils.MemoryStore, cfg Config) *BatchScorer {
	t.Helper()
	scorer, err := NewBatchScorer(
		mock, store, domain.DefaultWeights(), cfg,
		slog.New(slog.DiscardHandler), nil,
	)
	require.NoError(t, err)
	return scorer
}

func TestScoreAllEndToEnd(t *testing.T) {
	items := makeItems(t, 25)
	mock := &testutils.MockJudgeClient{}
	store := testutils.NewMemoryStore()
	scorer := newScorer(t, mock, store, Config{BatchSize: 10, Concurrency: 2})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, mock.Calls(), "25 items at batch size 10 means 3 batches")
	assert.Equal(t, 25, summary.Total)
	assert.Equal(t, 25, summary.Scored)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.FromCheckpoint)

	require.Len(t, results, 25)
	for i, scored := range results {
		assert.Equal(t, items[i].ID, scored.Item.ID, "output must preserve input order")
		require.NotNil(t, scored.Score)
		assert.Equal(t, items[i].ID, scored.Score.ItemID)

		want := domain.DefaultWeights().Composite(scored.Score.Dimensions)
		assert.InDelta(t, want, scored.Score.Composite, 1e-9,
			"composite must equal the weighted dimension sum")
	}
}

func TestScoreAllEmptyInput(t *testing.T) {
	mock := &testutils.MockJudgeClient{}
	store := testutils.NewMemoryStore()
	scorer := newScorer(t, mock, store, Config{})

	results, summary, err := scorer.ScoreAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Total)
	assert.Zero(t, mock.Calls())
}

func TestScoreAllRejectsDuplicateIDs(t *testing.T) {
	items := makeItems(t, 3)
	items = append(items, items[1])

	scorer := newScorer(t, &testutils.MockJudgeClient{}, testutils.NewMemoryStore(), Config{})

	_, _, err := scorer.ScoreAll(context.Background(), items)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateItemID)
}

func TestScoreAllOutOfOrderEntries(t *testing.T) {
	items := makeItems(t, 10)
	mock := &testutils.MockJudgeClient{ReverseOrder: true}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 10})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Scored)

	for i, scored := range results {
		require.NotNil(t, scored.Score)
		assert.Equal(t, items[i].ID, scored.Score.ItemID,
			"scores must follow the echoed id, not response position")
		assert.Equal(t, testutils.DerivedDims(items[i].ID), scored.Score.Dimensions)
	}
}

func TestScoreAllOutOfOrderBatchCompletion(t *testing.T) {
	items := makeItems(t, 30)
	// Stall the batch holding the first item so later batches finish ahead
	// of it.
	firstBatchMarker := fmt.Sprintf("[id: %s]", items[0].ID)
	mock := &testutils.MockJudgeClient{
		DelayFor: func(_ int, prompt string) time.Duration {
			if strings.Contains(prompt, firstBatchMarker) {
				return 60 * time.Millisecond
			}
			return 0
		},
	}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 10, Concurrency: 3})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Scored)

	require.Len(t, results, 30)
	for i, scored := range results {
		assert.Equal(t, items[i].ID, scored.Item.ID,
			"output must preserve input order even when later batches finish first")
		require.NotNil(t, scored.Score)
		assert.Equal(t, items[i].ID, scored.Score.ItemID)
	}
}

func TestScoreAllFreshRunsAreIdempotent(t *testing.T) {
	items := makeItems(t, 15)

	run := func() []domain.ScoredItem {
		scorer := newScorer(t, &testutils.MockJudgeClient{}, testutils.NewMemoryStore(),
			Config{BatchSize: 5, Concurrency: 2})
		results, summary, err := scorer.ScoreAll(context.Background(), items)
		require.NoError(t, err)
		require.Equal(t, 15, summary.Scored)
		return results
	}

	first := run()
	second := run()

	require.Len(t, second, len(first))
	for i := range first {
		require.NotNil(t, first[i].Score)
		require.NotNil(t, second[i].Score)
		assert.Equal(t, first[i].Item.ID, second[i].Item.ID)
		assert.Equal(t, *first[i].Score, *second[i].Score,
			"two fresh runs over the same input must produce identical scores")
	}
}

func TestScoreAllPartialBatch(t *testing.T) {
	items := makeItems(t, 10)
	mock := &testutils.MockJudgeClient{
		OmitIDs: map[string]bool{
			items[2].ID: true,
			items[5].ID: true,
			items[9].ID: true,
		},
	}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 10})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err, "a partial batch is not a run failure")
	assert.Equal(t, 7, summary.Scored)
	assert.Equal(t, 3, summary.Failed)

	for i, scored := range results {
		if i == 2 || i == 5 || i == 9 {
			assert.Nil(t, scored.Score, "omitted item %d must be unscored", i)
		} else {
			assert.NotNil(t, scored.Score)
		}
	}
}

func TestScoreAllUnknownEntriesDropped(t *testing.T) {
	items := makeItems(t, 5)
	mock := &testutils.MockJudgeClient{ExtraID: "deadbeefdeadbeefdeadbeefdeadbeef"}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 5})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Scored)
	require.Len(t, results, 5)
	for _, scored := range results {
		require.NotNil(t, scored.Score)
		assert.NotEqual(t, "deadbeefdeadbeefdeadbeefdeadbeef", scored.Score.ItemID)
	}
}

func TestScoreAllMarkdownWrappedResponse(t *testing.T) {
	items := makeItems(t, 4)
	mock := &testutils.MockJudgeClient{WrapMarkdown: true}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 4})

	_, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Scored)
}

func TestScoreAllPassesMaxTokens(t *testing.T) {
	items := makeItems(t, 3)
	mock := &testutils.MockJudgeClient{}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 3, MaxTokens: 2048})

	_, _, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)

	opts := mock.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, 2048, opts[0]["max_tokens"])
}

func TestScoreAllTransientBatchFailureContinues(t *testing.T) {
	items := makeItems(t, 20)
	exhausted := &judge.RetryExhaustedError{
		Attempts: 3,
		Err:      judge.NewProviderError("openai", judge.ErrorTypeServerError, 503, "down", nil),
	}
	mock := &testutils.MockJudgeClient{
		FailFunc: func(call int, _ string) error {
			if call == 1 {
				return exhausted
			}
			return nil
		},
	}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 10, Concurrency: 1})

	results, summary, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err, "an exhausted batch fails its items, not the run")
	assert.Equal(t, 10, summary.Scored)
	assert.Equal(t, 10, summary.Failed)
	require.Len(t, results, 20)
}

func TestScoreAllFatalAborts(t *testing.T) {
	items := makeItems(t, 30)
	fatal := judge.NewProviderError("openai", judge.ErrorTypeAuthentication, 401, "bad key", nil)
	mock := &testutils.MockJudgeClient{
		FailFunc: func(call int, _ string) error { return fatal },
	}
	scorer := newScorer(t, mock, testutils.NewMemoryStore(), Config{BatchSize: 10, Concurrency: 1})

	_, _, err := scorer.ScoreAll(context.Background(), items)
	require.Error(t, err)
	assert.True(t, judge.IsFatal(err))
	assert.Less(t, mock.Calls(), 3, "unstarted batches must not dispatch after a fatal error")
}

func TestScoreAllCancelledContextReturnsError(t *testing.T) {
	items := makeItems(t, 20)
	store := testutils.NewMemoryStore()
	scorer := newScorer(t, &testutils.MockJudgeClient{}, store, Config{BatchSize: 10, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := scorer.ScoreAll(ctx, items)
	require.Error(t, err, "a cancelled run must not look like a completed one")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Saves())
}

func TestScoreAllMidRunCancellation(t *testing.T) {
	items := makeItems(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &testutils.MockJudgeClient{
		FailFunc: func(call int, _ string) error {
			if call == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	store := testutils.NewMemoryStore()
	scorer := newScorer(t, mock, store, Config{BatchSize: 10, Concurrency: 1})

	_, _, err := scorer.ScoreAll(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, mock.Calls(), "the batch after cancellation must not dispatch")
	assert.True(t, store.Has(DefaultStage), "completed work must survive for the next run")
}

func TestScoreAllCheckpointSaveFailureIsFatal(t *testing.T) {
	items := makeItems(t, 5)
	store := testutils.NewMemoryStore()
	store.FailSaves = true
	scorer := newScorer(t, &testutils.MockJudgeClient{}, store, Config{BatchSize: 5})

	_, _, err := scorer.ScoreAll(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint save failed")
}

func TestScoreAllCheckpointPerBatch(t *testing.T) {
	items := makeItems(t, 25)
	store := testutils.NewMemoryStore()
	scorer := newScorer(t, &testutils.MockJudgeClient{}, store, Config{BatchSize: 10, Concurrency: 1})

	_, _, err := scorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Saves(), "every completed batch must checkpoint")
}

func TestScoreAllResume(t *testing.T) {
	items := makeItems(t, 20)
	store := testutils.NewMemoryStore()

	// First run: the second batch is down.
	exhausted := &judge.RetryExhaustedError{
		Attempts: 3,
		Err:      judge.NewProviderError("openai", judge.ErrorTypeServerError, 500, "boom", nil),
	}
	firstMock := &testutils.MockJudgeClient{
		FailFunc: func(call int, _ string) error {
			if call == 2 {
				return exhausted
			}
			return nil
		},
	}
	firstScorer := newScorer(t, firstMock, store, Config{BatchSize: 10, Concurrency: 1})

	firstResults, firstSummary, err := firstScorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 10, firstSummary.Scored)
	assert.Equal(t, 10, firstSummary.Failed)

	firstScores := make(map[string]domain.Score)
	for _, scored := range firstResults {
		if scored.Score != nil {
			firstScores[scored.Item.ID] = *scored.Score
		}
	}

	// Second run over the same input: checkpointed items are skipped and
	// their scores come back bit-identical.
	secondMock := &testutils.MockJudgeClient{}
	secondScorer := newScorer(t, secondMock, store, Config{BatchSize: 10, Concurrency: 1})

	secondResults, secondSummary, err := secondScorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 10, secondSummary.FromCheckpoint)
	assert.Equal(t, 10, secondSummary.Scored)
	assert.Zero(t, secondSummary.Failed)
	assert.Equal(t, 1, secondMock.Calls(), "only the unfinished batch is re-dispatched")

	for _, scored := range secondResults {
		require.NotNil(t, scored.Score)
		if prior, ok := firstScores[scored.Item.ID]; ok {
			assert.Equal(t, prior, *scored.Score, "resumed scores must be reused unchanged")
		}
	}
}

func TestScoreAllDiscardsCheckpointOnWeightChange(t *testing.T) {
	items := makeItems(t, 10)
	store := testutils.NewMemoryStore()

	firstScorer := newScorer(t, &testutils.MockJudgeClient{}, store, Config{BatchSize: 10})
	_, _, err := firstScorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)

	changed := domain.Weights{Relevance: 0.4, Importance: 0.3, Timeliness: 0.2, Reliability: 0.1}
	mock := &testutils.MockJudgeClient{}
	secondScorer, err := NewBatchScorer(
		mock, store, changed, Config{BatchSize: 10},
		slog.New(slog.DiscardHandler), nil,
	)
	require.NoError(t, err)

	_, summary, err := secondScorer.ScoreAll(context.Background(), items)
	require.NoError(t, err)
	assert.Zero(t, summary.FromCheckpoint, "a weight change invalidates the checkpoint")
	assert.Equal(t, 10, summary.Scored)
	assert.Equal(t, 1, mock.Calls())
}

func TestNewBatchScorerValidation(t *testing.T) {
	mock := &testutils.MockJudgeClient{}
	store := testutils.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)

	_, err := NewBatchScorer(nil, store, domain.DefaultWeights(), Config{}, logger, nil)
	assert.Error(t, err)

	_, err = NewBatchScorer(mock, nil, domain.DefaultWeights(), Config{}, logger, nil)
	assert.Error(t, err)

	badWeights := domain.Weights{Relevance: 0.5, Importance: 0.5, Timeliness: 0.5, Reliability: 0.5}
	_, err = NewBatchScorer(mock, store, badWeights, Config{}, logger, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = NewBatchScorer(mock, store, domain.DefaultWeights(), Config{BatchSize: 100}, logger, nil)
	assert.Error(t, err, "batch size above the cap must be rejected")
}

func TestPartition(t *testing.T) {
	items := makeItems(t, 7)

	batches := partition(items, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	assert.Len(t, partition(nil, 3), 0)
	assert.Len(t, partition(items, 10), 1)
}
