package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	require.Equal(t, CategoryWriting, ActivityEditing.Category())
	require.Equal(t, CategoryWriting, ActivityAddingNote.Category())
	require.Equal(t, CategoryWriting, ActivityStartingGame.Category())
	require.Equal(t, CategoryBrowsing, ActivityBrowsing.Category())
	require.Equal(t, CategoryBrowsing, ActivityType("character_sheet").Category())
}

func TestValidate(t *testing.T) {
	valid := Snapshot{
		UserID:          "u1",
		ActivityType:    ActivityBrowsing,
		ActivityLevel:   LevelActive,
		PageType:        PageWorkspace,
		SourceTimestamp: time.Now(),
	}
	require.NoError(t, valid.Validate())

	missingUser := valid
	missingUser.UserID = ""
	require.ErrorIs(t, missingUser.Validate(), ErrMissingUserID)

	missingActivity := valid
	missingActivity.ActivityType = ""
	require.ErrorIs(t, missingActivity.Validate(), ErrMissingActivity)

	badLevel := valid
	badLevel.ActivityLevel = "away"
	require.ErrorIs(t, badLevel.Validate(), ErrInvalidLevel)
}

func TestNormalizeTrimsIDs(t *testing.T) {
	s := Normalize(Snapshot{
		UserID:      " 42 ",
		WorkspaceID: "W1 ",
		DocumentID:  " D1",
		ParentID:    "  ",
	})
	require.Equal(t, "42", s.UserID)
	require.Equal(t, "W1", s.WorkspaceID)
	require.Equal(t, "D1", s.DocumentID)
	require.Equal(t, "", s.ParentID)
}

func TestEditingDocumentPredicate(t *testing.T) {
	s := Snapshot{
		UserID:        "u1",
		ActivityType:  ActivityEditing,
		ActivityLevel: LevelActive,
		DocumentID:    "D1",
	}
	require.True(t, s.EditingDocument())

	idle := s
	idle.ActivityLevel = LevelIdle
	require.False(t, idle.EditingDocument())

	noDoc := s
	noDoc.DocumentID = ""
	require.False(t, noDoc.EditingDocument())

	browsing := s
	browsing.ActivityType = ActivityBrowsing
	require.False(t, browsing.EditingDocument())
}
