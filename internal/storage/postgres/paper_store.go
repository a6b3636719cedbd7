package postgres

// Expected schema:
//
//	CREATE TABLE papers (
//	    seq     BIGSERIAL PRIMARY KEY,
//	    job_id  TEXT NOT NULL,
//	    record  JSONB NOT NULL
//	);
//	CREATE INDEX papers_job_id_idx ON papers (job_id);

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/litrev/harvester/internal/scholar"
)

// PaperStore persists harvested records in Postgres, one JSONB row each.
type PaperStore struct {
	pool  Pool
	table string
}

// NewPaperStore constructs a store over an existing pool.
func NewPaperStore(pool Pool, table string) (*PaperStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "papers"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PaperStore{pool: pool, table: table}, nil
}

// AppendRecords inserts a batch for the job.
func (s *PaperStore) AppendRecords(ctx context.Context, jobID string, batch []scholar.PaperRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (job_id, record) VALUES ($1, $2)`, s.table)
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := s.pool.Exec(ctx, query, jobID, data); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return nil
}

// ReplaceRecords swaps the job's stored set for the final records.
func (s *PaperStore) ReplaceRecords(ctx context.Context, jobID string, records []scholar.PaperRecord) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE job_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, del, jobID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return s.AppendRecords(ctx, jobID, records)
}

// ListRecords returns all records for a job in insertion order.
func (s *PaperStore) ListRecords(ctx context.Context, jobID string) ([]scholar.PaperRecord, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE job_id = $1 ORDER BY seq`, s.table)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []scholar.PaperRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec scholar.PaperRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
