package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/litrev/harvester/internal/scholar"
)

// SMTPConfig holds mail delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTPNotifier emails a short completion summary.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds a notifier from the config.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp host, from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}, nil
}

// JobCompleted sends the summary mail.
func (n *SMTPNotifier) JobCompleted(_ context.Context, job *scholar.JobState) error {
	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&body, "Subject: Harvest complete: %s\r\n\r\n", job.Name)
	fmt.Fprintf(&body, "Job %s finished with %d records.\r\n", job.ID, job.ProcessedCount)
	if job.PRISMA != nil {
		fmt.Fprintf(&body, "Identified: %d, duplicates removed: %d, included: %d.\r\n",
			job.PRISMA.RecordsIdentified, job.PRISMA.DuplicatesRemoved, job.PRISMA.StudiesIncluded)
	}
	if job.Artifacts.CSV != "" {
		fmt.Fprintf(&body, "Results: %s\r\n", job.Artifacts.CSV)
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, []byte(body.String())); err != nil {
		return fmt.Errorf("send completion mail: %w", err)
	}
	return nil
}
