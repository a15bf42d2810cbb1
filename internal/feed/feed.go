// Package feed keeps a polled copy of the registrant list.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"iftar-reg/internal/models"
)

const DefaultInterval = 30 * time.Second

// Source is the read half of the store.
type Source interface {
	ListRegistrations(ctx context.Context) ([]models.RegistrantSummary, error)
}

// State is what the feed currently shows. Registrants is the last list that
// loaded successfully; Err is set while the latest fetch failed.
type State struct {
	Registrants []models.RegistrantSummary
	Err         error
	Loaded      bool
	UpdatedAt   time.Time
}

type Feed struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	state State
}

func New(src Source, interval time.Duration, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{src: src, interval: interval, logger: logger, now: time.Now}
}

// Run fetches once right away and then on every tick until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	_ = f.Refresh(ctx)

	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = f.Refresh(ctx)
		}
	}
}

// Refresh fetches the list now. On success the list is replaced whole; on
// failure the previous list is kept and the error recorded.
func (f *Feed) Refresh(ctx context.Context) error {
	list, err := f.src.ListRegistrations(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			// shutting down, keep whatever state we had
			return err
		}
		f.state.Err = err
		f.logger.Warn("registrant feed refresh failed", "err", err, "kept", len(f.state.Registrants))
		return err
	}
	if list == nil {
		list = []models.RegistrantSummary{}
	}
	f.state = State{
		Registrants: list,
		Loaded:      true,
		UpdatedAt:   f.now(),
	}
	f.logger.Debug("registrant feed refreshed", "count", len(list))
	return nil
}

func (f *Feed) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.state
	s.Registrants = append([]models.RegistrantSummary(nil), f.state.Registrants...)
	return s
}

// Page returns page n (0-based) of size entries and the page count. A size
// of zero or less returns everything as a single page.
func (f *Feed) Page(n, size int) ([]models.RegistrantSummary, int) {
	return Paginate(f.Snapshot().Registrants, n, size)
}

func Paginate(list []models.RegistrantSummary, n, size int) ([]models.RegistrantSummary, int) {
	if size <= 0 || len(list) <= size {
		if n != 0 {
			return nil, 1
		}
		return list, 1
	}
	pages := (len(list) + size - 1) / size
	if n < 0 || n >= pages {
		return nil, pages
	}
	end := (n + 1) * size
	if end > len(list) {
		end = len(list)
	}
	return list[n*size : end], pages
}
