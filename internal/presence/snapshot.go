package presence

import (
	"errors"
	"strings"
	"time"
)

type ActivityLevel string

const (
	LevelActive ActivityLevel = "active"
	LevelIdle   ActivityLevel = "idle"
)

type ActivityType string

const (
	ActivityBrowsing     ActivityType = "browsing"
	ActivityEditing      ActivityType = "editing"
	ActivityAddingNote   ActivityType = "adding_note"
	ActivityStartingGame ActivityType = "starting_game"
)

type PageType string

const (
	PageWorkspaceList PageType = "workspace_list"
	PageWorkspace     PageType = "workspace"
	PageComposer      PageType = "composer"
	PageOther         PageType = "other"
)

// DefaultActivity is the activity type assumed for a page until a
// more specific one is reported.
func DefaultActivity(page PageType) ActivityType {
	if page == PageComposer {
		return ActivityStartingGame
	}
	return ActivityBrowsing
}

// Category is the two-way partition of activity types used by the
// occupancy aggregates.
type Category string

const (
	CategoryBrowsing Category = "browsing"
	CategoryWriting  Category = "writing"
)

func (t ActivityType) Category() Category {
	switch t {
	case ActivityEditing, ActivityAddingNote, ActivityStartingGame:
		return CategoryWriting
	}
	return CategoryBrowsing
}

// Snapshot is the latest known activity record for one user. At most one
// snapshot is stored per user id; a newer snapshot replaces the previous
// one outright, never merges with it.
type Snapshot struct {
	UserID        string        `json:"userId"`
	ActivityType  ActivityType  `json:"activityType"`
	ActivityLevel ActivityLevel `json:"activityLevel"`
	PageType      PageType      `json:"pageType"`
	WorkspaceID   string        `json:"workspaceId,omitempty"`
	DocumentID    string        `json:"documentId,omitempty"`
	ParentID      string        `json:"parentId,omitempty"`

	// LastSeenAt is stamped by the aggregator when the snapshot is stored.
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
	// SourceTimestamp is asserted by the sender and orders snapshots for
	// the same user across transports.
	SourceTimestamp time.Time `json:"sourceTimestamp"`
}

func (s Snapshot) Active() bool {
	return s.ActivityLevel == LevelActive
}

// EditingDocument reports whether this snapshot represents active editing
// of a specific document.
func (s Snapshot) EditingDocument() bool {
	return s.Active() && s.DocumentID != "" && s.ActivityType.Category() == CategoryWriting
}

var (
	ErrMissingUserID   = errors.New("snapshot missing user id")
	ErrMissingActivity = errors.New("snapshot missing activity type")
	ErrInvalidLevel    = errors.New("snapshot activity level must be active or idle")
)

// Normalize canonicalizes all ids to trimmed string form. It runs exactly
// once, at the ingestion boundary; nothing downstream re-normalizes.
func Normalize(s Snapshot) Snapshot {
	s.UserID = strings.TrimSpace(s.UserID)
	s.WorkspaceID = strings.TrimSpace(s.WorkspaceID)
	s.DocumentID = strings.TrimSpace(s.DocumentID)
	s.ParentID = strings.TrimSpace(s.ParentID)
	return s
}

func (s Snapshot) Validate() error {
	if s.UserID == "" {
		return ErrMissingUserID
	}
	if s.ActivityType == "" {
		return ErrMissingActivity
	}
	if s.ActivityLevel != LevelActive && s.ActivityLevel != LevelIdle {
		return ErrInvalidLevel
	}
	return nil
}
