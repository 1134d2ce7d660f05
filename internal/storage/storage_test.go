package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]Store{
		"file":   fileStore,
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "drr/model/abc"

			ok, err := store.Has(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, key, []byte(`{"v":1}`)))
			ok, err = store.Has(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(got))

			require.NoError(t, store.Put(ctx, key, []byte(`{"v":2}`)))
			got, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(got))

			require.NoError(t, store.Delete(ctx, key))
			assert.ErrorIs(t, store.Delete(ctx, key), ErrNotFound)
			ok, err = store.Has(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/abs", "trailing/", "a//b", "../escape", "a/./b", `a\b`} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, fileStore.Put(ctx, key, []byte("x")), ErrInvalidKey)
			assert.ErrorIs(t, NewMemoryStore().Put(ctx, key, []byte("x")), ErrInvalidKey)
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "drr/model/m1", []byte("data")))

	data, err := os.ReadFile(filepath.Join(dir, "drr", "model", "m1.json"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "drr", "model"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "k", []byte("v")), context.Canceled)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Put(ctx, "shared", []byte{byte(i)})
			_, _ = store.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	ok, err := store.Has(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(db, "test:")
	ctx := context.Background()

	t.Run("put", func(t *testing.T) {
		mock.ExpectSet("test:drr/model/m1", []byte("blob"), 0).SetVal("OK")
		require.NoError(t, store.Put(ctx, "drr/model/m1", []byte("blob")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("put with ttl", func(t *testing.T) {
		mock.ExpectSet("test:drr/model/m2", []byte("blob"), time.Hour).SetVal("OK")
		require.NoError(t, store.WithTTL(time.Hour).Put(ctx, "drr/model/m2", []byte("blob")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get hit", func(t *testing.T) {
		mock.ExpectGet("test:drr/model/m1").SetVal("blob")
		got, err := store.Get(ctx, "drr/model/m1")
		require.NoError(t, err)
		assert.Equal(t, "blob", string(got))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get miss", func(t *testing.T) {
		mock.ExpectGet("test:missing").RedisNil()
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get failure", func(t *testing.T) {
		mock.ExpectGet("test:broken").SetErr(redis.TxFailedErr)
		_, err := store.Get(ctx, "broken")
		assert.ErrorIs(t, err, redis.TxFailedErr)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("has", func(t *testing.T) {
		mock.ExpectExists("test:drr/model/m1").SetVal(1)
		ok, err := store.Has(ctx, "drr/model/m1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectDel("test:drr/model/m1").SetVal(1)
		require.NoError(t, store.Delete(ctx, "drr/model/m1"))

		mock.ExpectDel("test:drr/model/m1").SetVal(0)
		assert.ErrorIs(t, store.Delete(ctx, "drr/model/m1"), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid key", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, "../x", nil), ErrInvalidKey)
	})
}
