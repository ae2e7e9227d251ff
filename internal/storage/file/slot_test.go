package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

func TestSlotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	slot, err := NewSlot(dir, domain.SlotKey("abc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Y2FydDp2MTphYmM.json"), slot.Path())

	ctx := context.Background()
	_, err = slot.Load(ctx)
	require.ErrorIs(t, err, domain.ErrSlotEmpty)

	require.NoError(t, slot.Save(ctx, []byte(`{"version":1,"lines":[]}`)))
	require.NoError(t, slot.Save(ctx, []byte(`{"version":1,"lines":[ ]}`)))

	data, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"lines":[ ]}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, slot.Delete(ctx))
	require.NoError(t, slot.Delete(ctx))
	_, err = slot.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
}

func TestSlotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewSlot(dir, "cart:v1:s1")
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, []byte("payload")))

	second, err := NewSlot(dir, "cart:v1:s1")
	require.NoError(t, err)
	data, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestNewSlotValidation(t *testing.T) {
	_, err := NewSlot(t.TempDir(), "  ")
	assert.Error(t, err)
}

func TestFileNameEncodesKey(t *testing.T) {
	name := fileName("cart:v1:../x")
	assert.Equal(t, "Y2FydDp2MTouLi94.json", name)
	assert.NotContains(t, name, "/")
}

func TestDistinctKeysUseDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	colon, err := NewSlot(dir, domain.SlotKey("a:b"))
	require.NoError(t, err)
	underscore, err := NewSlot(dir, domain.SlotKey("a_b"))
	require.NoError(t, err)
	require.NotEqual(t, colon.Path(), underscore.Path())

	require.NoError(t, colon.Save(ctx, []byte(`{"version":1,"lines":[]}`)))
	_, err = underscore.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
}
