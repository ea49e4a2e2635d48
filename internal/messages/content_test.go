package messages

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/opla/internal/types"
)

func TestChangeContentRecordsHistory(t *testing.T) {
	t0 := time.Now()
	m := msg("a", "first", t0)

	m = ChangeContent(m, "second", "", "", t0.Add(time.Second))
	require.Len(t, m.ContentHistory, 1)
	m = ChangeContent(m, "third", "/raw third", "", t0.Add(2*time.Second))
	require.Len(t, m.ContentHistory, 2)

	assert.Equal(t, "first", types.TextOf(m.ContentHistory[0]), "oldest revision first")
	assert.Equal(t, "second", types.TextOf(m.ContentHistory[1]))
	assert.Equal(t, types.StatusDelivered, m.Status, "status is preserved")
	assert.Equal(t, t0.Add(2*time.Second), m.UpdatedAt)
}

func TestChangeContentSkipsHistory(t *testing.T) {
	t0 := time.Now()

	t.Run("same content", func(t *testing.T) {
		m := ChangeContent(msg("a", "same", t0), "same", "", "", t0)
		assert.Empty(t, m.ContentHistory)
	})

	t.Run("empty content", func(t *testing.T) {
		m := ChangeContent(msg("a", "", t0), "new", "", "", t0)
		assert.Empty(t, m.ContentHistory)
	})

	t.Run("error status", func(t *testing.T) {
		m := msg("a", ErrorText, t0)
		m.Status = types.StatusError
		m = ChangeContent(m, "retry", "", types.StatusPending, t0)
		assert.Empty(t, m.ContentHistory)
		assert.Equal(t, types.StatusPending, m.Status)
	})
}

func TestChangeContentDoesNotShareHistory(t *testing.T) {
	t0 := time.Now()
	orig := ChangeContent(msg("a", "v1", t0), "v2", "", "", t0)

	next := ChangeContent(orig, "v3", "", "", t0)

	assert.Len(t, orig.ContentHistory, 1)
	assert.Len(t, next.ContentHistory, 2)
}

func TestHistoryAt(t *testing.T) {
	t0 := time.Now()
	m := msg("a", "v1", t0)
	m = ChangeContent(m, "v2", "@model v2", "", t0)
	m = ChangeContent(m, "v3", "@model v3", "", t0)

	got, err := HistoryAt(m, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "v3", got)

	got, err = HistoryAt(m, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "@model v3", got)

	got, err = HistoryAt(m, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "@model v2", got)

	got, err = HistoryAt(m, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	_, err = HistoryAt(m, 3, false)
	assert.True(t, errors.Is(err, ErrHistoryIndex))
	assert.Equal(t, 3, Versions(m))
}
