package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

type fakeStrategy struct {
	name      string
	available bool
	records   []scholar.PaperRecord
	err       error
	calls     int
}

func (s *fakeStrategy) Name() string      { return s.name }
func (s *fakeStrategy) IsAvailable() bool { return s.available }

func (s *fakeStrategy) Search(context.Context, scholar.SearchCriteria, scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	s.calls++
	return s.records, s.err
}

func paper(title string) scholar.PaperRecord {
	return scholar.PaperRecord{Title: title, Year: 2021}
}

func TestCoordinatorFirstWorkingStrategyWins(t *testing.T) {
	t.Parallel()

	first := &fakeStrategy{name: "colly", available: true, records: []scholar.PaperRecord{paper("a")}}
	second := &fakeStrategy{name: "direct", available: true, records: []scholar.PaperRecord{paper("b")}}
	c := NewCoordinator([]scholar.Strategy{first, second}, time.Millisecond, zap.NewNop())

	records, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].Title)
	require.Equal(t, 0, second.calls)
}

func TestCoordinatorSkipsUnavailableStrategies(t *testing.T) {
	t.Parallel()

	skipped := &fakeStrategy{name: "browser", available: false}
	working := &fakeStrategy{name: "direct", available: true, records: []scholar.PaperRecord{paper("a")}}
	c := NewCoordinator([]scholar.Strategy{skipped, working}, time.Millisecond, zap.NewNop())

	_, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.NoError(t, err)
	require.Equal(t, 0, skipped.calls)

	// Skipping is not a failure.
	require.Zero(t, c.Stats()["browser"].FailureCount)
}

func TestCoordinatorFailsOverOnErrorAndEmpty(t *testing.T) {
	t.Parallel()

	failing := &fakeStrategy{name: "colly", available: true, err: errors.New("blocked hard")}
	empty := &fakeStrategy{name: "direct", available: true}
	working := &fakeStrategy{name: "browser", available: true, records: []scholar.PaperRecord{paper("a")}}
	c := NewCoordinator([]scholar.Strategy{failing, empty, working}, time.Millisecond, zap.NewNop())

	records, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	stats := c.Stats()
	require.Equal(t, 1, stats["colly"].FailureCount)
	require.Equal(t, 1, stats["direct"].FailureCount)
	require.Equal(t, 1, stats["browser"].SuccessCount)
}

func TestCoordinatorAllFailed(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := &fakeStrategy{name: "colly", available: true, err: errors.New("first")}
	b := &fakeStrategy{name: "direct", available: true, err: boom}
	c := NewCoordinator([]scholar.Strategy{a, b}, time.Millisecond, zap.NewNop())

	_, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.ErrorIs(t, err, scholar.ErrAllStrategiesFailed)
	require.ErrorIs(t, err, boom)

	var serr *scholar.StrategyError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "direct", serr.Strategy)
}

func TestCoordinatorNoAvailableStrategies(t *testing.T) {
	t.Parallel()

	c := NewCoordinator([]scholar.Strategy{
		&fakeStrategy{name: "colly"},
		&fakeStrategy{name: "direct"},
	}, time.Millisecond, zap.NewNop())

	_, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.ErrorIs(t, err, scholar.ErrAllStrategiesFailed)
}

func TestCoordinatorPauseDoesNotFailOver(t *testing.T) {
	t.Parallel()

	paused := &fakeStrategy{
		name:      "colly",
		available: true,
		records:   []scholar.PaperRecord{paper("partial")},
		err:       scholar.ErrPauseRequested,
	}
	next := &fakeStrategy{name: "direct", available: true, records: []scholar.PaperRecord{paper("b")}}
	c := NewCoordinator([]scholar.Strategy{paused, next}, time.Millisecond, zap.NewNop())

	records, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.ErrorIs(t, err, scholar.ErrPauseRequested)
	require.Len(t, records, 1)
	require.Equal(t, 0, next.calls)
}

func TestCoordinatorContextCancelDoesNotFailOver(t *testing.T) {
	t.Parallel()

	cancelled := &fakeStrategy{name: "colly", available: true, err: context.Canceled}
	next := &fakeStrategy{name: "direct", available: true, records: []scholar.PaperRecord{paper("b")}}
	c := NewCoordinator([]scholar.Strategy{cancelled, next}, time.Millisecond, zap.NewNop())

	_, err := c.Search(context.Background(), scholar.SearchCriteria{}, scholar.SearchCallbacks{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, next.calls)
}
