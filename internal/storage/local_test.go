package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "streams/s1.snap", []byte("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "streams/s1.snap", []byte("second")); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}

	data, err := store.Get(ctx, "streams/s1.snap")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %q", data)
	}

	exists, err := store.Exists(ctx, "streams/s1.snap")
	if err != nil || !exists {
		t.Errorf("expected object to exist, got %v, %v", exists, err)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	_, err = store.Get(context.Background(), "streams/missing.snap")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_DeleteAndList(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	ctx := context.Background()

	for _, p := range []string{"streams/b.snap", "streams/a.snap", "other/c"} {
		if err := store.Put(ctx, p, []byte(p)); err != nil {
			t.Fatalf("Put %s failed: %v", p, err)
		}
	}

	objects, err := store.List(ctx, "streams/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 || objects[0] != "streams/a.snap" || objects[1] != "streams/b.snap" {
		t.Errorf("unexpected listing %v", objects)
	}

	if err := store.Delete(ctx, "streams/a.snap"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "streams/a.snap"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
	exists, _ := store.Exists(ctx, "streams/a.snap")
	if exists {
		t.Error("expected object to be deleted")
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "x", []byte("y")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
