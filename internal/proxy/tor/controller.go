// Package tor drives a local Tor daemon's control port to rotate exit
// circuits between request batches.
package tor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Controller talks the Tor control protocol over a plain TCP connection.
// Each call dials fresh; the control port is local and cheap to reach.
type Controller struct {
	controlAddr string
	password    string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// Config holds the daemon endpoints.
type Config struct {
	// ControlAddr is the control port, typically 127.0.0.1:9051.
	ControlAddr string
	// Password authenticates against HashedControlPassword. Empty works
	// with cookie-less open control ports.
	Password string
}

// NewController builds a controller for the given control port.
func NewController(cfg Config, logger *zap.Logger) *Controller {
	if cfg.ControlAddr == "" {
		cfg.ControlAddr = "127.0.0.1:9051"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		controlAddr: cfg.ControlAddr,
		password:    cfg.Password,
		dialTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// NewCircuit asks the daemon for a fresh circuit via SIGNAL NEWNYM.
func (c *Controller) NewCircuit(ctx context.Context) error {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.controlAddr)
	if err != nil {
		return fmt.Errorf("dial control port: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout))
	}

	r := bufio.NewReader(conn)
	if err := c.command(conn, r, fmt.Sprintf("AUTHENTICATE %q", c.password)); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := c.command(conn, r, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("signal newnym: %w", err)
	}
	c.logger.Debug("requested new circuit")
	return nil
}

func (c *Controller) command(conn net.Conn, r *bufio.Reader, cmd string) error {
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("control port replied %q", line)
	}
	return nil
}
