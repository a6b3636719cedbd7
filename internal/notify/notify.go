// Package notify delivers best-effort job completion announcements.
package notify

import (
	"context"
	"fmt"

	"github.com/litrev/harvester/internal/scholar"
)

// Publisher publishes a payload to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CompletionEvent is the payload published when a job finishes.
type CompletionEvent struct {
	JobID          string                 `json:"job_id"`
	Name           string                 `json:"name"`
	Status         string                 `json:"status"`
	TotalFound     int                    `json:"total_found"`
	ProcessedCount int                    `json:"processed_count"`
	Artifacts      scholar.ArtifactPaths  `json:"artifacts"`
	PRISMA         *scholar.PRISMAMetrics `json:"prisma_metrics,omitempty"`
	CompletedAt    string                 `json:"completed_at,omitempty"`
}

// PublisherNotifier announces completions on a message topic.
type PublisherNotifier struct {
	publisher Publisher
	topic     string
}

// NewPublisherNotifier builds a notifier over the publisher.
func NewPublisherNotifier(publisher Publisher, topic string) *PublisherNotifier {
	return &PublisherNotifier{publisher: publisher, topic: topic}
}

// JobCompleted publishes the completion event.
func (n *PublisherNotifier) JobCompleted(ctx context.Context, job *scholar.JobState) error {
	event := CompletionEvent{
		JobID:          job.ID,
		Name:           job.Name,
		Status:         string(job.Status),
		TotalFound:     job.TotalFound,
		ProcessedCount: job.ProcessedCount,
		Artifacts:      job.Artifacts,
		PRISMA:         job.PRISMA,
	}
	if job.CompletedAt != nil {
		event.CompletedAt = job.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if _, err := n.publisher.Publish(ctx, n.topic, event); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}
	return nil
}

// Multi fans one notification out to several notifiers, returning the first
// error after trying all of them.
type Multi []scholar.Notifier

// JobCompleted notifies every member.
func (m Multi) JobCompleted(ctx context.Context, job *scholar.JobState) error {
	var firstErr error
	for _, n := range m {
		if err := n.JobCompleted(ctx, job); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
