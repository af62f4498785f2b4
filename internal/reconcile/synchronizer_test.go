package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func TestRenderedAppendsPlaceholders(t *testing.T) {
	s := NewSynchronizer(KindServer)
	require.NoError(t, s.Track(Entity{ID: "abc", Name: "survival"}))

	superseded := s.Apply([]Entity{{ID: "s1", Name: "lobby", Status: "RUNNING"}})
	assert.Empty(t, superseded)

	rendered := s.Rendered()
	assert.Equal(t, []string{"s1", "abc"}, ids(rendered))
	assert.False(t, rendered[0].Placeholder)
	assert.True(t, rendered[1].Placeholder)
	assert.Equal(t, StatusCreating, rendered[1].Status)
	assert.Equal(t, KindServer, rendered[1].Kind)
}

func TestApplySupersedesPlaceholder(t *testing.T) {
	s := NewSynchronizer(KindServer)
	require.NoError(t, s.Track(Entity{ID: "abc"}))
	require.NoError(t, s.Track(Entity{ID: "def"}))

	superseded := s.Apply([]Entity{{ID: "abc", Status: "STOPPED"}})
	assert.Equal(t, []string{"abc"}, superseded)

	rendered := s.Rendered()
	assert.Equal(t, []string{"abc", "def"}, ids(rendered))
	assert.False(t, rendered[0].Placeholder)

	_, ok := s.Placeholder("abc")
	assert.False(t, ok)
}

func TestApplyMatchesResolvedID(t *testing.T) {
	s := NewSynchronizer(KindServer)
	require.NoError(t, s.Track(Entity{ID: "req-1"}))
	require.True(t, s.Update("req-1", func(e *Entity) { e.ResolvedID = "srv-9" }))

	assert.Equal(t, []string{"req-1"}, s.Apply([]Entity{{ID: "srv-9"}}))
	assert.Equal(t, []string{"srv-9"}, ids(s.Rendered()))
}

func TestRenderedNeverShowsBoth(t *testing.T) {
	s := NewSynchronizer(KindServer)
	s.Apply([]Entity{{ID: "abc"}})
	// Tracked after the snapshot already contains the entity.
	require.NoError(t, s.Track(Entity{ID: "abc"}))

	assert.Equal(t, []string{"abc"}, ids(s.Rendered()))
	assert.Equal(t, []string{"abc"}, s.Apply([]Entity{{ID: "abc"}}))
	assert.Empty(t, s.Placeholders())
}

func TestTrackRejectsDuplicates(t *testing.T) {
	s := NewSynchronizer(KindBackup)
	require.NoError(t, s.Track(Entity{ID: "abc"}))
	assert.ErrorIs(t, s.Track(Entity{ID: "abc"}), ErrAlreadyTracked)
	assert.Len(t, s.Placeholders(), 1)
}

func TestApplyConverges(t *testing.T) {
	s := NewSynchronizer(KindServer)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Track(Entity{ID: id}))
	}

	snapshots := [][]Entity{
		{},
		{{ID: "b"}},
		{{ID: "b"}},
		{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	for _, snap := range snapshots {
		s.Apply(snap)
		seen := map[string]int{}
		for _, e := range s.Rendered() {
			seen[e.ID]++
		}
		for id, n := range seen {
			assert.Equalf(t, 1, n, "id %s rendered %d times", id, n)
		}
	}
	assert.Empty(t, s.Placeholders())
	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Rendered()))
}

func TestUpdateAndRemove(t *testing.T) {
	s := NewSynchronizer(KindServer)
	require.NoError(t, s.Track(Entity{ID: "abc", Attributes: map[string]string{"loader": "paper"}}))

	assert.True(t, s.Update("abc", func(e *Entity) {
		e.Status = StatusFailed
		e.ID = "tampered"
	}))
	assert.False(t, s.Update("missing", func(*Entity) {}))

	p, ok := s.Placeholder("abc")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, p.Status)

	// Copies are detached from internal state.
	p.Attributes["loader"] = "vanilla"
	again, _ := s.Placeholder("abc")
	assert.Equal(t, "paper", again.Attributes["loader"])

	assert.True(t, s.Remove("abc"))
	assert.False(t, s.Remove("abc"))
	assert.Empty(t, s.Rendered())
}

func TestParseKind(t *testing.T) {
	for input, want := range map[string]Kind{"server": KindServer, "servers": KindServer, "backup": KindBackup, "backups": KindBackup} {
		got, err := ParseKind(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("users")
	assert.Error(t, err)
}
