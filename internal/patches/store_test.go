package patches

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, rel := range []string{"lib.rs", "de/mod.rs", "a--b/c.rs", "weird%name/x y.rs"} {
		name := Name(rel)
		assert.NotContains(t, name, "/")
		assert.Equal(t, Suffix, filepath.Ext(name))

		back, err := RelPath(name)
		require.NoError(t, err)
		assert.Equal(t, rel, back)
	}

	assert.Equal(t, "de%2Fmod.rs.patch", Name("de/mod.rs"))
}

func TestStore_ReadWriteList(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "patches"))

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	_, ok, err := store.Read("de/mod.rs")
	require.NoError(t, err)
	assert.False(t, ok)

	diff, err := CreatePatch("de/mod.rs", "a\n", "b\n")
	require.NoError(t, err)
	require.NoError(t, store.Write("de/mod.rs", diff))
	require.NoError(t, store.Write("lib.rs", ""))

	text, ok, err := store.Read("de/mod.rs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, diff, text)

	records, err = store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "de/mod.rs", records[0].RelPath)
	assert.Equal(t, DiffStats{Added: 1, Removed: 1}, records[0].Stats)
	assert.Equal(t, "lib.rs", records[1].RelPath)

	require.NoError(t, store.Remove("lib.rs"))
	require.NoError(t, store.Remove("lib.rs"))
	records, err = store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_Check(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	good, err := CreatePatch("good.rs", "a\n", "b\n")
	require.NoError(t, err)
	stale, err := CreatePatch("stale.rs", "x\n", "y\n")
	require.NoError(t, err)

	require.NoError(t, store.Write("good.rs", good))
	require.NoError(t, store.Write("stale.rs", stale))
	require.NoError(t, os.WriteFile(store.Path("broken.rs"), []byte("@@ -1 +1 @@\n"), 0o644))

	pristine := map[string]string{"good.rs": "a\n", "stale.rs": "changed upstream\n"}
	err = store.Check(func(rel string) (string, error) {
		text, ok := pristine[rel]
		if !ok {
			return "", fmt.Errorf("not in upstream")
		}
		return text, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrApply)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "stale.rs")
	assert.NotContains(t, err.Error(), "good.rs")
}
