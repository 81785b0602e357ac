package aggregator

import (
	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

type changeKind string

const (
	changeJoinedWorkspace changeKind = "joined_workspace"
	changeLeftWorkspace   changeKind = "left_workspace"
	changeStartedBrowsing changeKind = "started_browsing"
	changeLeftSite        changeKind = "left_site"
	changeWentIdle        changeKind = "went_idle"
	changeBecameActive    changeKind = "became_active"
	changeCategoryChanged changeKind = "category_changed"
	changeEditingStarted  changeKind = "editing_started"
	changeEditingStopped  changeKind = "editing_stopped"
)

// change is one semantic difference between two snapshots of the same
// user. Its workspace/document ids mark which aggregates need a rebuild.
type change struct {
	kind        changeKind
	userID      string
	workspaceID string
	documentID  string
}

// diff compares the stored snapshot with the incoming one and produces
// the ordered change events. prev is nil on first sighting; cur is nil for
// an eviction, which reads as the user going from present to absent.
func diff(prev, cur *presence.Snapshot) []change {
	var changes []change

	if prev == nil {
		if cur == nil || !cur.Active() {
			return nil
		}
		if cur.WorkspaceID != "" {
			changes = append(changes, change{kind: changeJoinedWorkspace, userID: cur.UserID, workspaceID: cur.WorkspaceID})
		} else {
			changes = append(changes, change{kind: changeStartedBrowsing, userID: cur.UserID})
		}
		if cur.EditingDocument() {
			changes = append(changes, change{kind: changeEditingStarted, userID: cur.UserID, documentID: cur.DocumentID})
		}
		return changes
	}

	if cur == nil {
		if prev.EditingDocument() {
			changes = append(changes, change{kind: changeEditingStopped, userID: prev.UserID, documentID: prev.DocumentID})
		}
		if prev.Active() {
			if prev.WorkspaceID != "" {
				changes = append(changes, change{kind: changeLeftWorkspace, userID: prev.UserID, workspaceID: prev.WorkspaceID})
			} else {
				changes = append(changes, change{kind: changeLeftSite, userID: prev.UserID})
			}
		}
		return changes
	}

	if prev.WorkspaceID != cur.WorkspaceID {
		if prev.Active() && prev.WorkspaceID != "" {
			changes = append(changes, change{kind: changeLeftWorkspace, userID: prev.UserID, workspaceID: prev.WorkspaceID})
		}
		if cur.Active() && cur.WorkspaceID != "" {
			changes = append(changes, change{kind: changeJoinedWorkspace, userID: cur.UserID, workspaceID: cur.WorkspaceID})
		}
	}

	if prev.ActivityLevel != cur.ActivityLevel {
		kind := changeWentIdle
		if cur.Active() {
			kind = changeBecameActive
		}
		changes = append(changes, change{kind: kind, userID: cur.UserID, workspaceID: cur.WorkspaceID})
	}

	if prev.WorkspaceID == cur.WorkspaceID && prev.Active() && cur.Active() &&
		prev.ActivityType.Category() != cur.ActivityType.Category() {
		changes = append(changes, change{kind: changeCategoryChanged, userID: cur.UserID, workspaceID: cur.WorkspaceID})
	}

	prevEditing := prev.EditingDocument()
	curEditing := cur.EditingDocument()
	switch {
	case prevEditing && !curEditing:
		changes = append(changes, change{kind: changeEditingStopped, userID: prev.UserID, documentID: prev.DocumentID})
	case !prevEditing && curEditing:
		changes = append(changes, change{kind: changeEditingStarted, userID: cur.UserID, documentID: cur.DocumentID})
	case prevEditing && curEditing && prev.DocumentID != cur.DocumentID:
		// A direct switch emits stop for the old document before start for
		// the new one.
		changes = append(changes,
			change{kind: changeEditingStopped, userID: prev.UserID, documentID: prev.DocumentID},
			change{kind: changeEditingStarted, userID: cur.UserID, documentID: cur.DocumentID},
		)
	}

	return changes
}
