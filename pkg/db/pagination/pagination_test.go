package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct{ id int }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1234"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1234", cursor.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(it *item) string { return strconv.Itoa(it.id) }

	full := []*item{{1}, {2}, {3}}
	info := BuildCursorPageInfo(full, 2, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)

	last := BuildCursorPageInfo(full[:2], 2, extract)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextPageToken)

	empty := BuildCursorPageInfo([]*item{}, 2, extract)
	assert.False(t, empty.HasMore)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 50, ClampPageSize(0, 50, 1000))
	assert.Equal(t, 10, ClampPageSize(10, 50, 1000))
	assert.Equal(t, 1000, ClampPageSize(5000, 50, 1000))
}
