package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 30, 0, 123, time.UTC)
	encoded := EncodeCursor(Cursor{At: at, ID: 42})

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.True(t, decoded.At.Equal(at))
	require.Equal(t, int64(42), decoded.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, got)

	for _, raw := range []string{"%%%", "bm8tcGlwZQ", EncodeCursor(Cursor{At: time.Now()})} {
		_, err := ParseCursor(raw)
		require.Error(t, err, raw)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+5))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, 11, LimitWithBuffer(10))
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []int64{5, 4, 3}
	cursorOf := func(id int64) Cursor { return Cursor{At: base, ID: id} }

	page := Trim(rows, 2, cursorOf)
	require.Equal(t, []int64{5, 4}, page.Items)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, int64(4), next.ID)

	page = Trim(rows, 3, cursorOf)
	require.Len(t, page.Items, 3)
	require.Empty(t, page.NextCursor)
}
