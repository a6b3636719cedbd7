package scholar

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Pagination defaults shared by every strategy.
const (
	DefaultPageSize       = 10
	DefaultMaxOffset      = 990
	DefaultEmptyPageLimit = 2
)

// PageErrorFunc decides what a strategy does with a page-level fetch or
// parse failure. Returning nil advances to the next offset, ErrSkipYear
// abandons the current year partition, anything else aborts the harvest.
type PageErrorFunc func(ctx context.Context, q PageQuery, err error) error

// PaginationConfig tunes the shared harvest loop.
type PaginationConfig struct {
	PageSize       int
	MaxOffset      int
	EmptyPageLimit int
	OnPageError    PageErrorFunc
	Logger         *zap.Logger
}

func (c PaginationConfig) withDefaults() PaginationConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxOffset <= 0 {
		c.MaxOffset = DefaultMaxOffset
	}
	if c.EmptyPageLimit <= 0 {
		c.EmptyPageLimit = DefaultEmptyPageLimit
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Harvest drives the year-partitioned pagination loop over a fetcher. Years
// run oldest first, each as an independent sub-search with its own offset
// and termination state. Accepted records are returned even when an error
// cuts the harvest short.
func Harvest(ctx context.Context, fetcher PageFetcher, criteria SearchCriteria, cfg PaginationConfig, cb SearchCallbacks) ([]PaperRecord, error) {
	cfg = cfg.withDefaults()

	query := BuildQuery(criteria.IncludeKeywords, criteria.ExcludeKeywords)
	titles := NewTitleSet()

	var accepted []PaperRecord
	partitions := partitionsFor(criteria)
	for _, part := range partitions {
		err := harvestPartition(ctx, fetcher, query, part, criteria.MaxResults, cfg, cb, titles, &accepted)
		if errors.Is(err, ErrSkipYear) {
			cfg.Logger.Info("skipping year partition",
				zap.Int("year", part.low))
			continue
		}
		if err != nil {
			return accepted, err
		}
		if criteria.MaxResults > 0 && len(accepted) >= criteria.MaxResults {
			break
		}
	}
	if criteria.MaxResults > 0 && len(accepted) > criteria.MaxResults {
		accepted = accepted[:criteria.MaxResults]
	}
	return accepted, nil
}

type yearPartition struct {
	low, high int
}

func partitionsFor(criteria SearchCriteria) []yearPartition {
	years := criteria.Years()
	if years == nil {
		return []yearPartition{{low: criteria.StartYear, high: criteria.EndYear}}
	}
	parts := make([]yearPartition, 0, len(years))
	for _, y := range years {
		parts = append(parts, yearPartition{low: y, high: y})
	}
	return parts
}

func harvestPartition(ctx context.Context, fetcher PageFetcher, query string, part yearPartition, maxResults int, cfg PaginationConfig, cb SearchCallbacks, titles *TitleSet, accepted *[]PaperRecord) error {
	consecutiveEmpty := 0
	for offset := 0; offset < cfg.MaxOffset; offset += cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cb.checkGate(); err != nil {
			return err
		}
		if maxResults > 0 && len(*accepted) >= maxResults {
			return nil
		}

		q := PageQuery{
			Query:    query,
			Offset:   offset,
			YearLow:  part.low,
			YearHigh: part.high,
		}
		batch, err := fetchAndParse(ctx, fetcher, q)
		if err != nil {
			if cfg.OnPageError == nil {
				return err
			}
			if herr := cfg.OnPageError(ctx, q, err); herr != nil {
				return herr
			}
			cfg.Logger.Warn("page error, advancing offset",
				zap.Int("offset", offset),
				zap.Int("year", part.low),
				zap.Error(err))
			continue
		}

		newRecords := acceptPage(batch, titles)
		cb.reportDuplicates(len(batch) - len(newRecords))
		for _, rec := range newRecords {
			*accepted = append(*accepted, rec)
			cb.reportProgress(len(*accepted), estimateTotal(maxResults, len(*accepted)))
		}
		if len(newRecords) > 0 {
			if cb.Persist != nil {
				if perr := cb.Persist(newRecords); perr != nil {
					cfg.Logger.Warn("incremental persist failed",
						zap.Error(perr))
				}
			}
			consecutiveEmpty = 0
		} else {
			consecutiveEmpty++
			if consecutiveEmpty >= cfg.EmptyPageLimit {
				return nil
			}
		}
	}
	return nil
}

func fetchAndParse(ctx context.Context, fetcher PageFetcher, q PageQuery) ([]PaperRecord, error) {
	page, err := fetcher.FetchPage(ctx, q)
	if err != nil {
		return nil, err
	}
	records, err := ParseResults(page)
	if err != nil {
		return nil, fmt.Errorf("parse results at offset %d: %w", q.Offset, err)
	}
	return records, nil
}

func acceptPage(batch []PaperRecord, titles *TitleSet) []PaperRecord {
	fresh := batch[:0:0]
	for _, rec := range batch {
		if titles.MarkIfNew(rec.Title) {
			fresh = append(fresh, rec)
		}
	}
	return fresh
}

// estimateTotal mirrors the progress heuristic: the configured cap when one
// exists, otherwise double the running count.
func estimateTotal(maxResults, accepted int) int {
	if maxResults > 0 {
		return maxResults
	}
	return accepted * 2
}
