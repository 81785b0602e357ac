package reporter

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/plotbound/plotbound/presence-go/internal/engagement"
	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

const (
	idleTimeout       = 30 * time.Second
	engagementFloor   = 5
	heartbeatInterval = 30 * time.Second
	sendTimeout       = 10 * time.Second
	outboxSize        = 16
)

// Sender dispatches a heartbeat snapshot. Failures are transient; the next
// tick or state change resends current truth, so nothing retries inline.
type Sender interface {
	Send(ctx context.Context, snap presence.Snapshot) error
}

// Context is the local visitor's current activity record.
type Context struct {
	PageType      presence.PageType      `json:"pageType"`
	ActivityType  presence.ActivityType  `json:"activityType"`
	ActivityLevel presence.ActivityLevel `json:"activityLevel"`
	WorkspaceID   string                 `json:"workspaceId,omitempty"`
	DocumentID    string                 `json:"documentId,omitempty"`
	ParentID      string                 `json:"parentId,omitempty"`
}

// FormValues are the bound values of a composer form page.
type FormValues struct {
	WorkspaceID string
	DocumentID  string
	ParentID    string
}

// Page describes the view the visitor navigated to, as seen by the
// surrounding UI.
type Page struct {
	Type            presence.PageType
	ScopeHint       string
	ModalDocumentID string
	Form            FormValues
}

// Reporter owns the local visitor's context record, drives idle detection
// from the engagement sampler, and emits a heartbeat whenever the record
// changes or on a fixed timer.
type Reporter struct {
	mu      sync.Mutex
	clock   quartz.Clock
	sampler *engagement.Sampler
	sender  Sender
	userID  string

	current    Context
	panes      []string // most-recent-first nested viewer panes
	modalDocID string

	// initializing suppresses heartbeats until the first Navigate has
	// derived page type and context ids, so setup never bursts transient
	// snapshots.
	initializing bool

	idleTimer *quartz.Timer
	outbox    chan presence.Snapshot
}

func New(clock quartz.Clock, sampler *engagement.Sampler, sender Sender, userID string) *Reporter {
	return &Reporter{
		clock:   clock,
		sampler: sampler,
		sender:  sender,
		userID:  userID,
		current: Context{
			ActivityLevel: presence.LevelActive,
		},
		initializing: true,
		outbox:       make(chan presence.Snapshot, outboxSize),
	}
}

// Start launches the heartbeat dispatch loop and the periodic heartbeat
// ticker. Both stop when ctx ends.
func (r *Reporter) Start(ctx context.Context) {
	go r.dispatch(ctx)
	r.clock.TickerFunc(ctx, heartbeatInterval, func() error {
		r.Heartbeat()
		return nil
	}, "heartbeat")
	r.mu.Lock()
	r.armIdleLocked()
	r.mu.Unlock()
}

// Navigate recomputes the context record for a new page. The first call
// clears the initialization guard.
func (r *Reporter) Navigate(page Page) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current.PageType = page.Type
	r.current.ActivityType = presence.DefaultActivity(page.Type)
	r.modalDocID = page.ModalDocumentID
	r.extractLocked(page)
	r.initializing = false
	r.heartbeatLocked()
}

func (r *Reporter) extractLocked(page Page) {
	switch page.Type {
	case presence.PageWorkspaceList, presence.PageWorkspace:
		r.current.WorkspaceID = page.ScopeHint
		switch {
		case r.modalDocID != "":
			r.current.DocumentID = r.modalDocID
		case len(r.panes) > 0:
			r.current.DocumentID = r.panes[0]
		default:
			r.current.DocumentID = ""
		}
		r.current.ParentID = ""
	case presence.PageComposer:
		r.current.WorkspaceID = page.Form.WorkspaceID
		r.current.DocumentID = page.Form.DocumentID
		r.current.ParentID = page.Form.ParentID
	default:
		r.current.WorkspaceID = ""
		r.current.DocumentID = ""
		r.current.ParentID = ""
	}
}

func (r *Reporter) SetDocumentID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setDocumentIDLocked(id)
}

func (r *Reporter) setDocumentIDLocked(id string) {
	if r.current.DocumentID == id {
		return
	}
	r.current.DocumentID = id
	r.heartbeatLocked()
}

func (r *Reporter) SetActivityType(t presence.ActivityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.ActivityType == t {
		return
	}
	r.current.ActivityType = t
	r.heartbeatLocked()
}

func (r *Reporter) SetActivityLevel(level presence.ActivityLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setActivityLevelLocked(level)
}

func (r *Reporter) setActivityLevelLocked(level presence.ActivityLevel) {
	if r.current.ActivityLevel == level {
		return
	}
	r.current.ActivityLevel = level
	r.heartbeatLocked()
}

// PushOpenPane records a nested viewer pane opening, most-recent-first,
// deduplicating on push.
func (r *Reporter) PushOpenPane(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panes = slices.DeleteFunc(r.panes, func(p string) bool { return p == id })
	r.panes = append([]string{id}, r.panes...)
}

// PopOpenPane removes a pane. If it was the current document and no modal
// is open, the document id falls back to the next newest pane.
func (r *Reporter) PopOpenPane(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panes = slices.DeleteFunc(r.panes, func(p string) bool { return p == id })
	if r.modalDocID == "" && r.current.DocumentID == id {
		next := ""
		if len(r.panes) > 0 {
			next = r.panes[0]
		}
		r.setDocumentIDLocked(next)
	}
}

// OpenModal gives the modal's document priority over the pane list.
func (r *Reporter) OpenModal(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modalDocID = docID
	r.setDocumentIDLocked(docID)
}

// CloseModal recovers the document id from the newest open pane.
func (r *Reporter) CloseModal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modalDocID = ""
	next := ""
	if len(r.panes) > 0 {
		next = r.panes[0]
	}
	r.setDocumentIDLocked(next)
}

// Signal feeds one raw interaction signal. Any signal re-arms the idle
// timer; a signal while idle and visible reactivates immediately.
func (r *Reporter) Signal(kind engagement.Kind) {
	r.sampler.Record(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.ActivityLevel == presence.LevelIdle && r.sampler.Visible() {
		r.setActivityLevelLocked(presence.LevelActive)
	}
	r.armIdleLocked()
}

// SetVisible reflects tab visibility. A hidden page forces idle
// immediately regardless of the engagement score.
func (r *Reporter) SetVisible(visible bool) {
	r.sampler.SetVisible(visible)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !visible {
		r.setActivityLevelLocked(presence.LevelIdle)
		return
	}
	r.armIdleLocked()
}

func (r *Reporter) armIdleLocked() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = r.clock.AfterFunc(idleTimeout, r.idleCheck, "idle")
}

// idleCheck fires after idleTimeout with no re-arm. The transition still
// requires a low engagement score and a visible page; otherwise it checks
// again one timeout later.
func (r *Reporter) idleCheck() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.ActivityLevel == presence.LevelIdle {
		return
	}
	if !r.sampler.Visible() {
		r.setActivityLevelLocked(presence.LevelIdle)
		return
	}
	if r.clock.Since(r.sampler.LastSignal()) >= idleTimeout && r.sampler.Score() < engagementFloor {
		r.setActivityLevelLocked(presence.LevelIdle)
		return
	}
	r.armIdleLocked()
}

// Heartbeat enqueues the current context for dispatch, subject to the
// initialization and authentication guards.
func (r *Reporter) Heartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeatLocked()
}

func (r *Reporter) heartbeatLocked() {
	if r.initializing || r.userID == "" {
		return
	}
	snap := r.snapshotLocked()
	select {
	case r.outbox <- snap:
	default:
		slog.Warn("heartbeat outbox full, dropping", "user", r.userID)
	}
}

// Snapshot returns the current context as a snapshot stamped with the
// current time.
func (r *Reporter) Snapshot() presence.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() presence.Snapshot {
	return presence.Snapshot{
		UserID:          r.userID,
		ActivityType:    r.current.ActivityType,
		ActivityLevel:   r.current.ActivityLevel,
		PageType:        r.current.PageType,
		WorkspaceID:     r.current.WorkspaceID,
		DocumentID:      r.current.DocumentID,
		ParentID:        r.current.ParentID,
		SourceTimestamp: r.clock.Now(),
	}
}

// Current returns a copy of the context record.
func (r *Reporter) Current() Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reporter) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-r.outbox:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := r.sender.Send(sendCtx, snap)
			cancel()
			if err != nil {
				slog.Warn("send heartbeat", "error", err, "user", r.userID)
			}
		}
	}
}
