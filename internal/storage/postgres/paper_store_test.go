package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/litrev/harvester/internal/scholar"
)

func newMockPaperStore(t *testing.T) (pgxmock.PgxPoolIface, *PaperStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPaperStore(mock, "papers")
	require.NoError(t, err)
	return mock, store
}

func TestAppendRecordsInsertsEachRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockPaperStore(t)
	batch := []scholar.PaperRecord{
		{Title: "Coral Bleaching Dynamics", Year: 2020, Citations: 12},
		{Title: "Reef Recovery", Year: 2021},
	}
	for _, rec := range batch {
		mock.ExpectExec("INSERT INTO papers").
			WithArgs("job-1", mustJSON(t, rec)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.AppendRecords(context.Background(), "job-1", batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRecordsPropagatesError(t *testing.T) {
	t.Parallel()

	mock, store := newMockPaperStore(t)
	mock.ExpectExec("INSERT INTO papers").
		WithArgs("job-1", mustJSON(t, scholar.PaperRecord{Title: "x"})).
		WillReturnError(errors.New("connection reset"))

	err := store.AppendRecords(context.Background(), "job-1", []scholar.PaperRecord{{Title: "x"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRecordsClearsThenInserts(t *testing.T) {
	t.Parallel()

	mock, store := newMockPaperStore(t)
	rec := scholar.PaperRecord{Title: "kept"}

	mock.ExpectExec("DELETE FROM papers WHERE job_id").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("INSERT INTO papers").
		WithArgs("job-1", mustJSON(t, rec)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.ReplaceRecords(context.Background(), "job-1", []scholar.PaperRecord{rec}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsUnmarshalsInOrder(t *testing.T) {
	t.Parallel()

	mock, store := newMockPaperStore(t)
	first := scholar.PaperRecord{Title: "first", Year: 2019}
	second := scholar.PaperRecord{Title: "second", Year: 2020}

	rows := pgxmock.NewRows([]string{"record"}).
		AddRow(mustJSON(t, first)).
		AddRow(mustJSON(t, second))
	mock.ExpectQuery("SELECT record FROM papers WHERE job_id = (.+) ORDER BY seq").
		WithArgs("job-1").
		WillReturnRows(rows)

	records, err := store.ListRecords(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "first", records[0].Title)
	require.Equal(t, 2020, records[1].Year)
	require.NoError(t, mock.ExpectationsWereMet())
}
