package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

const (
	sweepInterval = 2 * time.Minute
	staleAfter    = 10 * time.Minute
	eventBuffer   = 64
)

// Aggregator holds the latest snapshot per user and maintains the three
// derived occupancy views. All mutation happens synchronously under one
// lock, so a reader never observes a half-updated aggregate.
type Aggregator struct {
	mu    sync.Mutex
	clock quartz.Clock

	snapshots  map[string]presence.Snapshot
	workspaces map[string]WorkspaceActivity
	documents  map[string]DocumentEditing
	site       SiteActivity

	events chan Event
}

func New(clock quartz.Clock) *Aggregator {
	return &Aggregator{
		clock:      clock,
		snapshots:  make(map[string]presence.Snapshot),
		workspaces: make(map[string]WorkspaceActivity),
		documents:  make(map[string]DocumentEditing),
		events:     make(chan Event, eventBuffer),
	}
}

// Events is the stream of aggregate-changed notifications. Emission never
// blocks ingestion; a full buffer drops the notification and the next
// recompute corrects consumers.
func (a *Aggregator) Events() <-chan Event {
	return a.events
}

// Start runs the staleness sweeper until ctx ends.
func (a *Aggregator) Start(ctx context.Context) {
	a.clock.TickerFunc(ctx, sweepInterval, func() error {
		a.SweepStale(a.clock.Now())
		return nil
	}, "sweep")
}

// Ingest processes one snapshot, local or remote. Malformed snapshots are
// rejected whole; a snapshot whose source timestamp is not newer than the
// stored one for that user is ignored, which keeps a delayed remote echo
// from overwriting newer local state.
func (a *Aggregator) Ingest(snap presence.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	changes, err := a.ingestLocked(snap)
	if err != nil {
		return err
	}
	a.applyLocked(changes)
	return nil
}

// IngestBatch processes a bootstrap batch as one unit: one recompute and
// one round of events for the whole batch. Malformed entries are dropped
// individually and do not fail the batch.
func (a *Aggregator) IngestBatch(snaps []presence.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var changes []change
	for _, snap := range snaps {
		cs, err := a.ingestLocked(snap)
		if err != nil {
			slog.Warn("dropping malformed snapshot", "error", err, "user", snap.UserID)
			continue
		}
		changes = append(changes, cs...)
	}
	a.applyLocked(changes)
}

func (a *Aggregator) ingestLocked(snap presence.Snapshot) ([]change, error) {
	snap = presence.Normalize(snap)
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("ingest snapshot: %w", err)
	}

	prev, known := a.snapshots[snap.UserID]
	if known && !snap.SourceTimestamp.After(prev.SourceTimestamp) {
		slog.Debug("ignoring stale snapshot", "user", snap.UserID)
		return nil, nil
	}

	snap.LastSeenAt = a.clock.Now()
	var prevPtr *presence.Snapshot
	if known {
		prevPtr = &prev
	}
	changes := diff(prevPtr, &snap)
	a.snapshots[snap.UserID] = snap
	return changes, nil
}

// SweepStale evicts snapshots not refreshed within the staleness window.
// Each eviction runs through the normal recompute path as a synthetic
// "user left" change, so consumers are corrected without waiting for the
// user's next real update.
func (a *Aggregator) SweepStale(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var changes []change
	for id, snap := range a.snapshots {
		if now.Sub(snap.LastSeenAt) < staleAfter {
			continue
		}
		prev := snap
		changes = append(changes, diff(&prev, nil)...)
		delete(a.snapshots, id)
	}
	a.applyLocked(changes)
}

// applyLocked rebuilds every aggregate touched by the change set and
// emits one event per touched scope. Each rebuild is a full filtered
// rescan of the snapshot table rather than a counter update, which makes
// the aggregates self-healing against any missed delta.
func (a *Aggregator) applyLocked(changes []change) {
	if len(changes) == 0 {
		return
	}
	now := a.clock.Now()

	wsTouched := make(map[string]struct{})
	docTouched := make(map[string]struct{})
	for _, c := range changes {
		if c.workspaceID != "" {
			wsTouched[c.workspaceID] = struct{}{}
		}
		if c.documentID != "" {
			docTouched[c.documentID] = struct{}{}
		}
	}

	for _, ws := range sortedKeys(wsTouched) {
		agg := a.recomputeWorkspaceLocked(ws, now)
		a.emit(WorkspaceActivityChanged{agg})
	}
	for _, doc := range sortedKeys(docTouched) {
		state := a.recomputeDocumentLocked(doc, now)
		a.emit(DocumentActivityChanged{DocumentID: doc, Editing: state, Timestamp: now})
	}

	a.site = a.recomputeSiteLocked(now)
	a.emit(SiteActivityChanged{a.site})
}

func (a *Aggregator) recomputeWorkspaceLocked(workspaceID string, now time.Time) WorkspaceActivity {
	agg := WorkspaceActivity{WorkspaceID: workspaceID, ComputedAt: now}
	referenced := false
	for _, snap := range a.snapshots {
		if snap.WorkspaceID != workspaceID {
			continue
		}
		referenced = true
		if !snap.Active() {
			continue
		}
		if snap.ActivityType.Category() == presence.CategoryWriting {
			agg.WritingCount++
		} else {
			agg.BrowsingCount++
		}
	}
	if referenced {
		a.workspaces[workspaceID] = agg
	} else {
		delete(a.workspaces, workspaceID)
	}
	return agg
}

func (a *Aggregator) recomputeDocumentLocked(documentID string, now time.Time) *DocumentEditing {
	var winner *presence.Snapshot
	for _, snap := range a.snapshots {
		if !snap.EditingDocument() || snap.DocumentID != documentID {
			continue
		}
		snap := snap
		// Last write wins on concurrent editors: newest source timestamp,
		// user id as the tie break.
		if winner == nil ||
			snap.SourceTimestamp.After(winner.SourceTimestamp) ||
			(snap.SourceTimestamp.Equal(winner.SourceTimestamp) && snap.UserID > winner.UserID) {
			winner = &snap
		}
	}
	if winner == nil {
		delete(a.documents, documentID)
		return nil
	}
	state := DocumentEditing{
		DocumentID:    documentID,
		EditingUserID: winner.UserID,
		EditingType:   winner.ActivityType,
		ParentID:      winner.ParentID,
		ComputedAt:    now,
	}
	a.documents[documentID] = state
	return &state
}

func (a *Aggregator) recomputeSiteLocked(now time.Time) SiteActivity {
	site := SiteActivity{ComputedAt: now}
	for _, snap := range a.snapshots {
		if !snap.Active() {
			continue
		}
		if snap.ActivityType.Category() == presence.CategoryWriting {
			site.WritingCount++
		} else {
			site.BrowsingCount++
		}
	}
	site.Total = site.BrowsingCount + site.WritingCount
	return site
}

// WorkspaceActivity returns the stored aggregate for a workspace.
func (a *Aggregator) WorkspaceActivity(workspaceID string) (WorkspaceActivity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.workspaces[workspaceID]
	return agg, ok
}

// DocumentEditing returns the stored editing state for a document.
func (a *Aggregator) DocumentEditing(documentID string) (DocumentEditing, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.documents[documentID]
	return state, ok
}

// SiteActivity returns the site-wide aggregate.
func (a *Aggregator) SiteActivity() SiteActivity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.site
}

func (a *Aggregator) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		slog.Warn("event buffer full, dropping aggregate event")
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
