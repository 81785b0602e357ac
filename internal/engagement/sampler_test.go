package engagement

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func TestSamplerScore(t *testing.T) {
	clock := quartz.NewMock(t)
	s := NewSampler(clock)

	require.Equal(t, 0, s.Score())
	s.Record(PointerMove)
	s.Record(PointerMove)
	s.Record(KeyPress)
	s.Record(Scroll)
	s.Record(Click)
	require.Equal(t, 5, s.Score())
}

func TestSamplerVisibility(t *testing.T) {
	clock := quartz.NewMock(t)
	s := NewSampler(clock)

	require.True(t, s.Visible())
	s.SetVisible(false)
	require.False(t, s.Visible())
	s.SetVisible(true)
	require.True(t, s.Visible())
}

func TestSamplerResetWindow(t *testing.T) {
	clock := quartz.NewMock(t)
	s := NewSampler(clock)

	s.Record(KeyPress)
	s.Record(KeyPress)
	require.Equal(t, 2, s.Score())

	// Continuous activity past the reset window clears the counters so an
	// earlier burst cannot mask a later idle period.
	clock.Advance(5 * time.Minute)
	require.Equal(t, 0, s.Score())

	s.Record(Click)
	require.Equal(t, 1, s.Score())
}

func TestSamplerLastSignal(t *testing.T) {
	clock := quartz.NewMock(t)
	s := NewSampler(clock)

	start := clock.Now()
	clock.Advance(10 * time.Second)
	s.Record(PointerMove)
	require.Equal(t, start.Add(10*time.Second), s.LastSignal())
}
