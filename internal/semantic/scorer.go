// Package semantic screens harvested records against natural-language
// inclusion and exclusion criteria using an LLM.
package semantic

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

// batchKeptScore marks records the model kept in batch mode, where no
// numeric relevance is available.
const batchKeptScore = 1

// CompletionClient produces one text completion per prompt.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes the scorer.
type Config struct {
	// BatchSize bounds how many records share one batch-mode prompt.
	BatchSize int
	// Threshold is the minimum normalized score to keep a record in
	// individual mode.
	Threshold float64
}

// Scorer filters record sets. Screening is advisory: any model or parse
// failure errs toward keeping records rather than silently dropping them.
type Scorer struct {
	client    CompletionClient
	batchSize int
	threshold float64
	logger    *zap.Logger
}

// New builds a scorer.
func New(client CompletionClient, cfg Config, logger *zap.Logger) *Scorer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		client:    client,
		batchSize: cfg.BatchSize,
		threshold: cfg.Threshold,
		logger:    logger,
	}
}

// Filter returns the records that pass the criteria. Batch mode is one
// keep/drop prompt per batch and marks kept records with score 1;
// individual mode scores every record 0 to 10 and keeps those at or above
// the threshold, carrying the score on the record. Batches kept because
// the model call failed stay unscored.
func (s *Scorer) Filter(ctx context.Context, records []scholar.PaperRecord, inclusion, exclusion string, batchMode bool) ([]scholar.PaperRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	if batchMode {
		return s.filterBatches(ctx, records, inclusion, exclusion)
	}
	return s.filterIndividually(ctx, records, inclusion, exclusion)
}

func (s *Scorer) filterBatches(ctx context.Context, records []scholar.PaperRecord, inclusion, exclusion string) ([]scholar.PaperRecord, error) {
	kept := make([]scholar.PaperRecord, 0, len(records))
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		resp, err := s.client.Complete(ctx, buildBatchPrompt(batch, inclusion, exclusion))
		if err != nil {
			// A whole-batch failure keeps the batch.
			s.logger.Warn("batch screening failed, keeping batch",
				zap.Int("batch_start", start),
				zap.Error(err))
			kept = append(kept, batch...)
			continue
		}
		for _, idx := range parseBatchResponse(resp, len(batch)) {
			rec := batch[idx]
			passed := batchKeptScore
			rec.SemanticScore = &passed
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (s *Scorer) filterIndividually(ctx context.Context, records []scholar.PaperRecord, inclusion, exclusion string) ([]scholar.PaperRecord, error) {
	kept := make([]scholar.PaperRecord, 0, len(records))
	for i, rec := range records {
		score := s.scoreOne(ctx, rec, inclusion, exclusion, i)
		if score < s.threshold {
			continue
		}
		raw := int(math.Round(score * 10))
		rec.SemanticScore = &raw
		kept = append(kept, rec)
	}
	return kept, nil
}

// scoreOne returns the normalized relevance in [0, 1]. Failures score a
// neutral 0.5 so a flaky model never empties a harvest.
func (s *Scorer) scoreOne(ctx context.Context, rec scholar.PaperRecord, inclusion, exclusion string, idx int) float64 {
	resp, err := s.client.Complete(ctx, buildScorePrompt(rec, inclusion, exclusion))
	if err != nil {
		s.logger.Warn("record scoring failed, using neutral score",
			zap.Int("index", idx),
			zap.Error(err))
		return 0.5
	}
	raw, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil || raw < 0 || raw > 10 {
		s.logger.Warn("unparseable score, using neutral score",
			zap.Int("index", idx),
			zap.String("response", resp))
		return 0.5
	}
	return float64(raw) / 10
}

func buildBatchPrompt(batch []scholar.PaperRecord, inclusion, exclusion string) string {
	var b strings.Builder
	b.WriteString("You are screening academic papers for a literature review.\n")
	writeCriteria(&b, inclusion, exclusion)
	b.WriteString("\nPapers:\n")
	for i, rec := range batch {
		fmt.Fprintf(&b, "%d. Title: %s\n", i+1, rec.Title)
		if rec.Abstract != "" {
			fmt.Fprintf(&b, "   Abstract: %s\n", rec.Abstract)
		}
	}
	b.WriteString("\nReply with the numbers of the papers that satisfy the criteria, ")
	b.WriteString("comma-separated (for example: 1,3,4). Reply NONE if no paper qualifies. ")
	b.WriteString("Reply with numbers only.")
	return b.String()
}

func buildScorePrompt(rec scholar.PaperRecord, inclusion, exclusion string) string {
	var b strings.Builder
	b.WriteString("You are screening an academic paper for a literature review.\n")
	writeCriteria(&b, inclusion, exclusion)
	fmt.Fprintf(&b, "\nTitle: %s\n", rec.Title)
	if rec.Abstract != "" {
		fmt.Fprintf(&b, "Abstract: %s\n", rec.Abstract)
	}
	b.WriteString("\nRate the paper's relevance from 0 (irrelevant) to 10 (highly relevant). ")
	b.WriteString("Reply with a single integer only.")
	return b.String()
}

func writeCriteria(b *strings.Builder, inclusion, exclusion string) {
	if inclusion != "" {
		fmt.Fprintf(b, "Inclusion criteria: %s\n", inclusion)
	}
	if exclusion != "" {
		fmt.Fprintf(b, "Exclusion criteria: %s\n", exclusion)
	}
}

// parseBatchResponse extracts zero-based indices to keep. Malformed or
// out-of-range tokens are skipped; a response with no usable index at all
// keeps the whole batch.
func parseBatchResponse(resp string, batchLen int) []int {
	resp = strings.TrimSpace(resp)
	if strings.EqualFold(resp, "NONE") {
		return nil
	}
	var keep []int
	seen := make(map[int]struct{})
	for _, field := range strings.Split(resp, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 || n > batchLen {
			continue
		}
		if _, dup := seen[n-1]; dup {
			continue
		}
		seen[n-1] = struct{}{}
		keep = append(keep, n-1)
	}
	if len(keep) == 0 {
		return allIndices(batchLen)
	}
	return keep
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
