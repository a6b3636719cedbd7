package scholar

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleep waits for d or until the context is done, returning the context
// error in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer enforces a randomized minimum gap between requests, measured from
// the end of the previous request. The first Wait returns immediately.
type Pacer struct {
	min, max time.Duration
	last     time.Time
	now      func() time.Time
}

// NewPacer returns a pacer that waits a uniform random duration in
// [min, max] between requests.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max, now: time.Now}
}

// Wait blocks until the next request may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.last.IsZero() {
		return ctx.Err()
	}
	gap := p.min
	if span := p.max - p.min; span > 0 {
		gap += rand.N(span + 1)
	}
	elapsed := p.now().Sub(p.last)
	return Sleep(ctx, gap-elapsed)
}

// Done marks the end of a request. The next Wait measures from this point.
func (p *Pacer) Done() {
	p.last = p.now()
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (Version/17.4 Safari/605.1.15)",
}

// UserAgentRotator hands out a different browser identity per request.
type UserAgentRotator struct {
	agents []string
	idx    int
}

// NewUserAgentRotator rotates over agents, or a built-in browser list when
// agents is empty. The starting position is randomized.
func NewUserAgentRotator(agents []string) *UserAgentRotator {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &UserAgentRotator{agents: agents, idx: rand.N(len(agents))}
}

// Next returns the next user agent string.
func (r *UserAgentRotator) Next() string {
	ua := r.agents[r.idx%len(r.agents)]
	r.idx++
	return ua
}

// RotationSchedule decides when to request a fresh proxy circuit. A new
// threshold in [min, max] is drawn after every rotation.
type RotationSchedule struct {
	min, max  int
	count     int
	threshold int
}

// NewRotationSchedule rotates after every min to max requests.
func NewRotationSchedule(min, max int) *RotationSchedule {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	s := &RotationSchedule{min: min, max: max}
	s.reset()
	return s
}

func (s *RotationSchedule) reset() {
	s.count = 0
	s.threshold = s.min
	if span := s.max - s.min; span > 0 {
		s.threshold += rand.N(span + 1)
	}
}

// Due counts one request and reports whether a rotation is now due. The
// counter resets when it returns true.
func (s *RotationSchedule) Due() bool {
	s.count++
	if s.count < s.threshold {
		return false
	}
	s.reset()
	return true
}
