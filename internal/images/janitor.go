package images

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// URLSource lists every image URL still referenced by a memory.
type URLSource interface {
	ImageURLs(ctx context.Context) ([]string, error)
}

// Janitor removes local upload files no memory refers to. Uploads are
// written before their memory row, so files younger than the grace period
// are left alone.
type Janitor struct {
	local    *Local
	src      URLSource
	interval time.Duration
	grace    time.Duration
	log      *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewJanitor(local *Local, src URLSource, interval, grace time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{
		local:    local,
		src:      src,
		interval: interval,
		grace:    grace,
		log:      log,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start sweeps once and then on every interval until Stop or ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.sweepAndLog(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.sweepAndLog(ctx)
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the background loop and waits for it.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) sweepAndLog(ctx context.Context) {
	removed, err := j.Sweep(ctx)
	if err != nil {
		j.log.Warn("upload sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.log.Info("removed orphaned uploads", "count", removed)
	}
}

// Sweep deletes unreferenced upload files older than the grace period and
// returns how many it removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	urls, err := j.src.ImageURLs(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if name := j.local.FileName(u); name != "" {
			keep[name] = struct{}{}
		}
	}

	entries, err := os.ReadDir(j.local.Dir())
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.grace)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		// Leftover temp files from interrupted uploads are swept too.
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(name, ".upload-") {
			continue
		}
		if err := os.Remove(filepath.Join(j.local.Dir(), name)); err != nil {
			j.log.Warn("remove orphaned upload", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
