package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/litrev/harvester/internal/scholar"
)

func TestPaperStoreAppendAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPaperStore()

	require.NoError(t, s.AppendRecords(ctx, "job-1", []scholar.PaperRecord{{Title: "a"}, {Title: "b"}}))
	require.NoError(t, s.AppendRecords(ctx, "job-1", []scholar.PaperRecord{{Title: "c"}}))
	require.NoError(t, s.AppendRecords(ctx, "job-2", []scholar.PaperRecord{{Title: "other"}}))

	records, err := s.ListRecords(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "a", records[0].Title)
	require.Equal(t, "c", records[2].Title)

	other, err := s.ListRecords(ctx, "job-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestPaperStoreReplaceRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPaperStore()

	require.NoError(t, s.AppendRecords(ctx, "job-1", []scholar.PaperRecord{{Title: "a"}, {Title: "b"}}))
	score := 9
	require.NoError(t, s.ReplaceRecords(ctx, "job-1", []scholar.PaperRecord{{Title: "a", SemanticScore: &score}}))

	records, err := s.ListRecords(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].SemanticScore)
}

func TestPaperStoreListUnknownJobIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewPaperStore()
	records, err := s.ListRecords(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestPaperStoreListReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPaperStore()
	require.NoError(t, s.AppendRecords(ctx, "job-1", []scholar.PaperRecord{{Title: "a"}}))

	records, err := s.ListRecords(ctx, "job-1")
	require.NoError(t, err)
	records[0].Title = "mutated"

	again, err := s.ListRecords(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "a", again[0].Title)
}
