package seen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_OpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "processed_urls.json"), nil)
	require.NoError(t, err)
	require.Zero(t, store.Len())
	require.False(t, store.Contains("https://shop.test/products/smartfon-x"))
}

func TestStore_AddFlushReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_urls.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	store.Add(
		"https://shop.test/products/smartfon-b",
		"https://shop.test/products/smartfon-a",
		"",
	)
	require.Equal(t, 2, store.Len())
	require.True(t, store.Contains("https://shop.test/products/smartfon-a"))
	require.NoError(t, store.Flush())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())
	require.True(t, reopened.Contains("https://shop.test/products/smartfon-b"))
}

func TestStore_FlushWithoutChangesWritesNothing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_urls.json")
	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Flush())

	_, statErr := os.Stat(path)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	store.Add("https://shop.test/products/smartfon-a")
	require.NoError(t, store.Flush())
	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	first := info.ModTime()

	// Re-adding an existing URL leaves the store clean.
	store.Add("https://shop.test/products/smartfon-a")
	require.NoError(t, store.Flush())
	info, statErr = os.Stat(path)
	require.NoError(t, statErr)
	require.Equal(t, first, info.ModTime())
}

func TestStore_OpenCorruptedFileFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_urls.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := Open(path, nil)
	require.Error(t, err)
}

func TestStore_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "processed_urls.json"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Add(
				"https://shop.test/products/smartfon-shared",
				fmt.Sprintf("https://shop.test/products/smartfon-%d", n),
			)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 9, store.Len())
}
