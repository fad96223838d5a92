package jobsync

import (
	"context"
	"sync"

	"github.com/urlqueue/urlqueue/internal/job"
)

// PollGroup keeps one poller running for every displayed job that is not terminal.
type PollGroup struct {
	poller   *Poller
	onUpdate func(job.Record)

	mu      sync.Mutex
	handles map[int64]*Handle
	closed  bool
}

func NewPollGroup(poller *Poller, onUpdate func(job.Record)) *PollGroup {
	return &PollGroup{
		poller:   poller,
		onUpdate: onUpdate,
		handles:  make(map[int64]*Handle),
	}
}

// Sync makes the group follow exactly the given records: pollers of jobs no
// longer displayed are stopped and pollers are started for newly displayed
// jobs. A job whose poller already ended stays tracked while it is displayed,
// so it is not polled again from a stale list entry.
func (g *PollGroup) Sync(ctx context.Context, records []job.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	displayed := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		displayed[rec.ID] = struct{}{}
	}
	for id, h := range g.handles {
		if _, ok := displayed[id]; !ok {
			h.Stop()
			delete(g.handles, id)
		}
	}
	for _, rec := range records {
		if _, ok := g.handles[rec.ID]; ok {
			continue
		}
		g.handles[rec.ID] = g.poller.Watch(ctx, rec, g.onUpdate)
	}
}

// Live returns records with each entry replaced by the latest version its
// poller has observed.
func (g *PollGroup) Live(records []job.Record) []job.Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]job.Record, len(records))
	for i, rec := range records {
		out[i] = rec
		if h, ok := g.handles[rec.ID]; ok {
			if latest, seen := h.Record(); seen {
				out[i] = latest
			}
		}
	}
	return out
}

// Len returns the number of pollers still running.
func (g *PollGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, h := range g.handles {
		select {
		case <-h.Done():
		default:
			n++
		}
	}
	return n
}

// Close stops every poller and waits for them to exit. Sync is a no-op afterwards.
func (g *PollGroup) Close() {
	g.mu.Lock()
	handles := g.handles
	g.handles = make(map[int64]*Handle)
	g.closed = true
	g.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	for _, h := range handles {
		h.Wait()
	}
}
