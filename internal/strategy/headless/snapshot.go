package headless

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SnapshotKeeper persists the most recent page screenshot per job for
// debugging blocked or malformed pages. Only the latest shot survives; the
// previous file is removed on every write.
type SnapshotKeeper struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewSnapshotKeeper writes screenshots under dir, creating it on first use.
// A nil keeper disables screenshots entirely.
func NewSnapshotKeeper(dir string, logger *zap.Logger) *SnapshotKeeper {
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotKeeper{
		dir:    dir,
		logger: logger,
		last:   make(map[string]string),
	}
}

// Keep stores the screenshot for the job, replacing any earlier one.
func (k *SnapshotKeeper) Keep(jobID string, shot []byte) {
	if k == nil || len(shot) == 0 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.MkdirAll(k.dir, 0o755); err != nil {
		k.logger.Warn("screenshot dir unavailable", zap.Error(err))
		return
	}
	name := fmt.Sprintf("scraper_%s_%d.png", jobID, time.Now().UnixMilli())
	path := filepath.Join(k.dir, name)
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		k.logger.Warn("screenshot write failed", zap.Error(err))
		return
	}
	if prev := k.last[jobID]; prev != "" && prev != path {
		_ = os.Remove(prev)
	}
	k.last[jobID] = path
}
