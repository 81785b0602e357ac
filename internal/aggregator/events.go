package aggregator

import (
	"time"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

// WorkspaceActivity is the derived occupancy of one workspace. Browsing
// and writing partition the workspace's active users by activity category.
type WorkspaceActivity struct {
	WorkspaceID   string    `json:"workspaceId"`
	BrowsingCount int       `json:"browsingCount"`
	WritingCount  int       `json:"writingCount"`
	ComputedAt    time.Time `json:"computedAt"`
}

// DocumentEditing is the derived editing state of one document. If two
// users report editing the same document, the snapshot with the newest
// source timestamp wins and no conflict signal is produced.
type DocumentEditing struct {
	DocumentID    string                `json:"documentId"`
	EditingUserID string                `json:"editingUserId"`
	EditingType   presence.ActivityType `json:"editingType"`
	ParentID      string                `json:"parentId,omitempty"`
	ComputedAt    time.Time             `json:"computedAt"`
}

// SiteActivity is the derived site-wide occupancy over all stored
// snapshots regardless of workspace.
type SiteActivity struct {
	BrowsingCount int       `json:"browsingCount"`
	WritingCount  int       `json:"writingCount"`
	Total         int       `json:"total"`
	ComputedAt    time.Time `json:"computedAt"`
}

// Event is one aggregate-changed notification. Consumers receive plain
// copies, never references into aggregator storage.
type Event interface {
	event()
}

type WorkspaceActivityChanged struct {
	WorkspaceActivity
}

// DocumentActivityChanged carries a nil Editing when no one is editing
// the document anymore, so consumers can tell "no editor" apart from
// "no update".
type DocumentActivityChanged struct {
	DocumentID string           `json:"documentId"`
	Editing    *DocumentEditing `json:"editing"`
	Timestamp  time.Time        `json:"timestamp"`
}

type SiteActivityChanged struct {
	SiteActivity
}

func (WorkspaceActivityChanged) event() {}
func (DocumentActivityChanged) event()  {}
func (SiteActivityChanged) event()      {}
