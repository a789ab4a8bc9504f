package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	ldb, err := NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })

	return map[string]Store{
		"mem":     NewMemStore(),
		"leveldb": ldb,
	}
}

func TestStoreGetPutDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get([]byte("missing"))
			assert.True(t, IsNotFound(err))

			require.NoError(t, s.Put([]byte("k"), []byte("v1")))
			v, err := s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), v)

			// overwrite must not serve the stale cached value
			require.NoError(t, s.Put([]byte("k"), []byte("v2")))
			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), v)

			has, err := s.Has([]byte("k"))
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, s.Delete([]byte("k")))
			_, err = s.Get([]byte("k"))
			assert.True(t, IsNotFound(err))
			has, err = s.Has([]byte("k"))
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestStoreIteratePrefix(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"b/2", "a/1", "b/1", "b/3", "c/1"} {
				require.NoError(t, s.Put([]byte(k), []byte(k)))
			}

			var keys []string
			err := s.Iterate([]byte("b/"), func(k, v []byte) bool {
				assert.Equal(t, k, v)
				keys = append(keys, string(k))
				return true
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"b/1", "b/2", "b/3"}, keys)

			keys = nil
			err = s.Iterate([]byte("b/"), func(k, v []byte) bool {
				keys = append(keys, string(k))
				return len(keys) < 2
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"b/1", "b/2"}, keys)
		})
	}
}

func TestBatchIsAtomicUntilWrite(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put([]byte("gone"), []byte("x")))
			// warm the cache so the delete has something to evict
			_, err := s.Get([]byte("gone"))
			require.NoError(t, err)

			b := s.NewBatch()
			require.NoError(t, b.Put([]byte("a"), []byte("1")))
			require.NoError(t, b.Put([]byte("b"), []byte("2")))
			require.NoError(t, b.Delete([]byte("gone")))
			assert.Equal(t, 3, b.Len())

			_, err = s.Get([]byte("a"))
			assert.True(t, IsNotFound(err), "batch visible before write")

			require.NoError(t, b.Write())

			v, err := s.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)
			v, err = s.Get([]byte("b"))
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), v)
			_, err = s.Get([]byte("gone"))
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put([]byte("k"), []byte("abc")))
			v, err := s.Get([]byte("k"))
			require.NoError(t, err)
			v[0] = 'z'

			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), v)
		})
	}
}

func TestOpenLevelDBPersists(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenLevelDB(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("farms/1"), []byte("payload")))
	require.NoError(t, db.Close())

	db, err = OpenLevelDB(dir, Options{ValueCacheEntries: 8})
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Get([]byte("farms/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)
}

func TestOpenLevelDBReleasesLockOnClose(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		db, err := OpenLevelDB(dir, Options{})
		require.NoError(t, err, "open #%d", i)
		require.NoError(t, db.Close())
	}

	db, err := OpenLevelDB(dir, Options{})
	require.NoError(t, err)
	_, err = OpenLevelDB(dir, Options{})
	assert.Error(t, err, "directory is locked while open")
	require.NoError(t, db.Close())
}
