package kvstore_test

import (
	"context"
	"testing"

	"github.com/abustany/monthly-board/pkg/kvstore"
)

func testStore(t *testing.T, storeFactory func() kvstore.Store) {
	withStore := func(f func(t *testing.T, store kvstore.Store)) func(*testing.T) {
		return func(t *testing.T) {
			store := storeFactory()
			defer store.Close()

			f(t, store)
		}
	}

	t.Run("Get missing", withStore(testGetMissing))
	t.Run("Set", withStore(testSet))
	t.Run("Remove", withStore(testRemove))
	t.Run("Keys", withStore(testKeys))
}

func checkValue(t *testing.T, store kvstore.Store, key, expected string) {
	value, found, err := store.Get(context.Background(), key)

	if err != nil {
		t.Errorf("Get returned an error: %s", err)
		return
	}

	if !found {
		t.Errorf("Get didn't find key %s", key)
		return
	}

	if value != expected {
		t.Errorf("Unexpected value for key %s: got %q, expected %q", key, value, expected)
	}
}

func testGetMissing(t *testing.T, store kvstore.Store) {
	value, found, err := store.Get(context.Background(), "missing")

	if err != nil {
		t.Errorf("Get returned an error for a missing key: %s", err)
	}

	if found {
		t.Errorf("Get found a key that was never set")
	}

	if value != "" {
		t.Errorf("Get returned a value for a missing key: %q", value)
	}
}

func testSet(t *testing.T, store kvstore.Store) {
	ctx := context.Background()

	if err := store.Set(ctx, "boardPosts_2024/01", `[{"id":1}]`); err != nil {
		t.Fatalf("Set returned an error: %s", err)
	}

	checkValue(t, store, "boardPosts_2024/01", `[{"id":1}]`)

	if err := store.Set(ctx, "boardPosts_2024/01", `[]`); err != nil {
		t.Fatalf("Set returned an error when overwriting: %s", err)
	}

	checkValue(t, store, "boardPosts_2024/01", `[]`)
}

func testRemove(t *testing.T, store kvstore.Store) {
	ctx := context.Background()

	if err := store.Remove(ctx, "missing"); err != nil {
		t.Errorf("Remove returned an error for a missing key: %s", err)
	}

	if err := store.Set(ctx, "boardPosts", "[]"); err != nil {
		t.Fatalf("Set returned an error: %s", err)
	}

	if err := store.Remove(ctx, "boardPosts"); err != nil {
		t.Errorf("Remove returned an error: %s", err)
	}

	if _, found, _ := store.Get(ctx, "boardPosts"); found {
		t.Errorf("Key still exists after Remove")
	}
}

func testKeys(t *testing.T, store kvstore.Store) {
	ctx := context.Background()

	keys, err := store.Keys(ctx)

	if err != nil {
		t.Fatalf("Keys returned an error on an empty store: %s", err)
	}

	if len(keys) != 0 {
		t.Errorf("Keys returned %d keys on an empty store", len(keys))
	}

	for _, key := range []string{"boardPosts_2024/02", "boardPosts", "boardPosts_2023/12", "other"} {
		if err := store.Set(ctx, key, "[]"); err != nil {
			t.Fatalf("Set returned an error: %s", err)
		}
	}

	keys, err = store.Keys(ctx)

	if err != nil {
		t.Fatalf("Keys returned an error: %s", err)
	}

	expected := []string{"boardPosts", "boardPosts_2023/12", "boardPosts_2024/02", "other"}

	if len(keys) != len(expected) {
		t.Fatalf("Keys returned %d keys, expected %d", len(keys), len(expected))
	}

	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Unexpected key at index %d: got %s, expected %s", i, keys[i], expected[i])
		}
	}
}
