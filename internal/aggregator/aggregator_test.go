package aggregator

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

func newTestAggregator(t *testing.T) (*Aggregator, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	return New(clock), clock
}

func snap(user string, level presence.ActivityLevel, activity presence.ActivityType, workspace, document string, at time.Time) presence.Snapshot {
	return presence.Snapshot{
		UserID:          user,
		ActivityType:    activity,
		ActivityLevel:   level,
		PageType:        presence.PageWorkspace,
		WorkspaceID:     workspace,
		DocumentID:      document,
		SourceTimestamp: at,
	}
}

func drain(a *Aggregator) []Event {
	var evs []Event
	for {
		select {
		case ev := <-a.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func eventsByType(evs []Event) (ws []WorkspaceActivityChanged, docs []DocumentActivityChanged, site []SiteActivityChanged) {
	for _, ev := range evs {
		switch e := ev.(type) {
		case WorkspaceActivityChanged:
			ws = append(ws, e)
		case DocumentActivityChanged:
			docs = append(docs, e)
		case SiteActivityChanged:
			site = append(site, e)
		}
	}
	return ws, docs, site
}

func TestIngestActiveEditor(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now)))

	ws, docs, site := eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, "W1", ws[0].WorkspaceID)
	require.Equal(t, 0, ws[0].BrowsingCount)
	require.Equal(t, 1, ws[0].WritingCount)

	require.Len(t, docs, 1)
	require.Equal(t, "D1", docs[0].DocumentID)
	require.NotNil(t, docs[0].Editing)
	require.Equal(t, "1", docs[0].Editing.EditingUserID)
	require.Equal(t, presence.ActivityEditing, docs[0].Editing.EditingType)

	require.Len(t, site, 1)
	require.Equal(t, 1, site[0].WritingCount)
	require.Equal(t, 1, site[0].Total)
}

func TestEditorGoesIdle(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now)))
	drain(a)

	require.NoError(t, a.Ingest(snap("1", presence.LevelIdle, presence.ActivityEditing, "W1", "D1", now.Add(time.Second))))

	ws, docs, site := eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, 0, ws[0].BrowsingCount)
	require.Equal(t, 0, ws[0].WritingCount)

	require.Len(t, docs, 1)
	require.Nil(t, docs[0].Editing, "idle editor must clear the document state")

	require.Len(t, site, 1)
	require.Equal(t, 0, site[0].Total)
}

func TestIdempotentReingest(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()
	s := snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now)

	require.NoError(t, a.Ingest(s))
	drain(a)

	// Same source timestamp: duplicate delivery, ignored outright.
	require.NoError(t, a.Ingest(s))
	require.Empty(t, drain(a))

	// Newer timestamp but identical content: stored, but the change set is
	// empty so nothing recomputes or emits.
	s.SourceTimestamp = now.Add(time.Second)
	require.NoError(t, a.Ingest(s))
	require.Empty(t, drain(a))
}

func TestStaleSnapshotIgnored(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now)))
	drain(a)

	// A delayed echo of older state must not overwrite newer state.
	require.NoError(t, a.Ingest(snap("1", presence.LevelIdle, presence.ActivityBrowsing, "W1", "", now.Add(-time.Minute))))
	require.Empty(t, drain(a))

	agg, ok := a.WorkspaceActivity("W1")
	require.True(t, ok)
	require.Equal(t, 1, agg.WritingCount)
}

func TestMalformedSnapshotRejected(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	err := a.Ingest(snap("", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now))
	require.ErrorIs(t, err, presence.ErrMissingUserID)
	require.Empty(t, drain(a))
	require.Equal(t, 0, a.SiteActivity().Total)

	err = a.Ingest(presence.Snapshot{UserID: "1", ActivityType: presence.ActivityBrowsing, ActivityLevel: "away", SourceTimestamp: now})
	require.ErrorIs(t, err, presence.ErrInvalidLevel)
}

func TestIDsNormalizedAtIngestion(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap(" 1 ", presence.LevelActive, presence.ActivityBrowsing, " W1 ", "", now)))
	drain(a)

	// The same user with canonical ids must diff against the stored
	// snapshot, not register as a second user.
	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now.Add(time.Second))))
	require.Empty(t, drain(a))

	agg, ok := a.WorkspaceActivity("W1")
	require.True(t, ok)
	require.Equal(t, 1, agg.BrowsingCount)
}

func TestDocumentSwitchIsAtomic(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now)))
	drain(a)

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D2", now.Add(time.Second))))

	ws, docs, site := eventsByType(drain(a))
	require.Empty(t, ws, "workspace occupancy is untouched by a document switch")
	require.Len(t, docs, 2)
	require.Equal(t, "D1", docs[0].DocumentID)
	require.Nil(t, docs[0].Editing)
	require.Equal(t, "D2", docs[1].DocumentID)
	require.NotNil(t, docs[1].Editing)
	require.Equal(t, "1", docs[1].Editing.EditingUserID)
	require.Len(t, site, 1)

	_, ok := a.DocumentEditing("D1")
	require.False(t, ok)
	state, ok := a.DocumentEditing("D2")
	require.True(t, ok)
	require.Equal(t, "1", state.EditingUserID)
}

func TestWorkspaceSwitch(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now)))
	drain(a)

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W2", "", now.Add(time.Second))))

	ws, _, site := eventsByType(drain(a))
	require.Len(t, ws, 2)
	byID := map[string]WorkspaceActivityChanged{}
	for _, e := range ws {
		byID[e.WorkspaceID] = e
	}
	require.Equal(t, 0, byID["W1"].BrowsingCount)
	require.Equal(t, 1, byID["W2"].BrowsingCount)
	require.Len(t, site, 1)
	require.Equal(t, 1, site[0].Total)
}

func TestCategoryChangeWithinWorkspace(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now)))
	drain(a)

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityAddingNote, "W1", "", now.Add(time.Second))))

	ws, _, _ := eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, 0, ws[0].BrowsingCount)
	require.Equal(t, 1, ws[0].WritingCount)

	// Raw type change within the same category is not a semantic change.
	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityStartingGame, "W1", "", now.Add(2*time.Second))))
	require.Empty(t, drain(a))
}

func TestBatchEmitsOneSiteEvent(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	a.IngestBatch([]presence.Snapshot{
		snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now),
		snap("2", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now),
		snap("3", presence.LevelActive, presence.ActivityBrowsing, "W2", "", now),
		snap("", presence.LevelActive, presence.ActivityBrowsing, "W2", "", now), // dropped
	})

	ws, docs, site := eventsByType(drain(a))
	require.Len(t, ws, 2)
	require.Len(t, docs, 1)
	require.Len(t, site, 1, "a batch fires exactly one site event")
	require.Equal(t, 3, site[0].Total)
	require.Equal(t, 2, site[0].BrowsingCount)
	require.Equal(t, 1, site[0].WritingCount)
}

func TestSweepEvictsStaleSnapshots(t *testing.T) {
	a, clock := newTestAggregator(t)

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", clock.Now())))
	clock.Advance(9 * time.Minute)
	require.NoError(t, a.Ingest(snap("2", presence.LevelActive, presence.ActivityAddingNote, "W1", "", clock.Now())))
	drain(a)

	agg, ok := a.WorkspaceActivity("W1")
	require.True(t, ok)
	require.Equal(t, 1, agg.BrowsingCount)
	require.Equal(t, 1, agg.WritingCount)

	// One minute later user 1 is ten minutes stale; user 2 is fresh.
	clock.Advance(time.Minute)
	a.SweepStale(clock.Now())

	ws, _, site := eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, 0, ws[0].BrowsingCount)
	require.Equal(t, 1, ws[0].WritingCount)
	require.Len(t, site, 1)
	require.Equal(t, 1, site[0].Total)
}

func TestSweepDrivesWorkspaceToZero(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	a.IngestBatch([]presence.Snapshot{
		snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now),
		snap("2", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now),
	})
	drain(a)

	clock.Advance(10 * time.Minute)
	a.SweepStale(clock.Now())

	ws, docs, site := eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, 0, ws[0].BrowsingCount)
	require.Equal(t, 0, ws[0].WritingCount)
	require.Len(t, docs, 1)
	require.Nil(t, docs[0].Editing)
	require.Len(t, site, 1)
	require.Equal(t, 0, site[0].Total)

	// Evicted users are forgotten entirely; reappearing is a fresh join.
	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", clock.Now())))
	ws, _, _ = eventsByType(drain(a))
	require.Len(t, ws, 1)
	require.Equal(t, 1, ws[0].BrowsingCount)
}

func TestLastWriteWinsOnConcurrentEditors(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now)))
	require.NoError(t, a.Ingest(snap("2", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now.Add(time.Second))))
	drain(a)

	state, ok := a.DocumentEditing("D1")
	require.True(t, ok)
	require.Equal(t, "2", state.EditingUserID)
}

func TestSiteTotalMatchesActiveCount(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	a.IngestBatch([]presence.Snapshot{
		snap("1", presence.LevelActive, presence.ActivityBrowsing, "W1", "", now),
		snap("2", presence.LevelActive, presence.ActivityEditing, "W1", "D1", now),
		snap("3", presence.LevelIdle, presence.ActivityBrowsing, "W2", "", now),
		snap("4", presence.LevelActive, presence.ActivityBrowsing, "", "", now),
	})
	drain(a)

	site := a.SiteActivity()
	require.Equal(t, 3, site.Total)
	require.Equal(t, 2, site.BrowsingCount)
	require.Equal(t, 1, site.WritingCount)
	require.Equal(t, site.Total, site.BrowsingCount+site.WritingCount)
}

func TestBrowsingOnlyUserTouchesSiteOnly(t *testing.T) {
	a, clock := newTestAggregator(t)
	now := clock.Now()

	require.NoError(t, a.Ingest(snap("1", presence.LevelActive, presence.ActivityBrowsing, "", "", now)))

	ws, docs, site := eventsByType(drain(a))
	require.Empty(t, ws)
	require.Empty(t, docs)
	require.Len(t, site, 1)
	require.Equal(t, 1, site[0].Total)

	// Going idle with no workspace still corrects the site aggregate.
	require.NoError(t, a.Ingest(snap("1", presence.LevelIdle, presence.ActivityBrowsing, "", "", now.Add(time.Second))))
	ws, _, site = eventsByType(drain(a))
	require.Empty(t, ws)
	require.Len(t, site, 1)
	require.Equal(t, 0, site[0].Total)
}
