package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	publishermem "github.com/litrev/harvester/internal/publisher/memory"
	"github.com/litrev/harvester/internal/scholar"
)

func completedJob() *scholar.JobState {
	done := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &scholar.JobState{
		ID:             "job-1",
		Name:           "coral survey",
		Status:         scholar.JobStatusCompleted,
		TotalFound:     30,
		ProcessedCount: 24,
		Artifacts:      scholar.ArtifactPaths{CSV: "gs://bucket/jobs/job-1/results.csv"},
		PRISMA:         &scholar.PRISMAMetrics{RecordsIdentified: 34, DuplicatesRemoved: 4, StudiesIncluded: 24},
		CompletedAt:    &done,
	}
}

func TestPublisherNotifierPublishesEvent(t *testing.T) {
	t.Parallel()

	pub := publishermem.New()
	n := NewPublisherNotifier(pub, "harvest-completions")

	require.NoError(t, n.JobCompleted(context.Background(), completedJob()))
	messages := pub.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "harvest-completions", messages[0].Topic)

	event, ok := messages[0].Payload.(CompletionEvent)
	require.True(t, ok)
	require.Equal(t, "job-1", event.JobID)
	require.Equal(t, "completed", event.Status)
	require.Equal(t, 24, event.ProcessedCount)
	require.Equal(t, "2025-06-01T12:00:00Z", event.CompletedAt)
}

func TestPublisherNotifierWrapsError(t *testing.T) {
	t.Parallel()

	boom := errors.New("topic gone")
	n := NewPublisherNotifier(&publishermem.Publisher{Err: boom}, "t")

	err := n.JobCompleted(context.Background(), completedJob())
	require.ErrorIs(t, err, boom)
}

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) JobCompleted(context.Context, *scholar.JobState) error {
	n.calls++
	return n.err
}

func TestMultiNotifiesAllAndReturnsFirstError(t *testing.T) {
	t.Parallel()

	first := &recordingNotifier{err: errors.New("first failure")}
	second := &recordingNotifier{err: errors.New("second failure")}
	third := &recordingNotifier{}
	m := Multi{first, second, third}

	err := m.JobCompleted(context.Background(), completedJob())
	require.EqualError(t, err, "first failure")
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Equal(t, 1, third.calls)
}

func TestSMTPNotifierValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.org"})
	require.Error(t, err)

	n, err := NewSMTPNotifier(SMTPConfig{
		Host: "smtp.example.org",
		From: "harvester@example.org",
		To:   []string{"team@example.org"},
	})
	require.NoError(t, err)
	require.Equal(t, 587, n.cfg.Port)
}

func TestSMTPNotifierSendsSummary(t *testing.T) {
	t.Parallel()

	n, err := NewSMTPNotifier(SMTPConfig{
		Host:     "smtp.example.org",
		Port:     2525,
		Username: "user",
		Password: "pass",
		From:     "harvester@example.org",
		To:       []string{"team@example.org"},
	})
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, n.JobCompleted(context.Background(), completedJob()))
	require.Equal(t, "smtp.example.org:2525", gotAddr)
	require.Equal(t, "harvester@example.org", gotFrom)
	require.Equal(t, []string{"team@example.org"}, gotTo)
	require.Contains(t, string(gotMsg), "Subject: Harvest complete: coral survey")
	require.Contains(t, string(gotMsg), "Job job-1 finished with 24 records.")
	require.Contains(t, string(gotMsg), "duplicates removed: 4")
	require.Contains(t, string(gotMsg), "gs://bucket/jobs/job-1/results.csv")
}

func TestSMTPNotifierWrapsSendError(t *testing.T) {
	t.Parallel()

	n, err := NewSMTPNotifier(SMTPConfig{
		Host: "smtp.example.org",
		From: "harvester@example.org",
		To:   []string{"team@example.org"},
	})
	require.NoError(t, err)

	boom := errors.New("connection refused")
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	require.ErrorIs(t, n.JobCompleted(context.Background(), completedJob()), boom)
}
