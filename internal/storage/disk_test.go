package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("owner-1/100.pdf", strings.NewReader("resume bytes")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reader, err := store.Open("owner-1/100.pdf")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "resume bytes" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestSaveRejectsExistingKey(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("owner-1/100.pdf", strings.NewReader("first")); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	err := store.Save("owner-1/100.pdf", strings.NewReader("second"))
	if !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected key exists error, got %v", err)
	}

	reader, err := store.Open("owner-1/100.pdf")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	if string(content) != "first" {
		t.Fatalf("original object was modified: %q", content)
	}
}

func TestOpenMissingObjectReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Open("owner-1/missing.pdf")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestKeysEscapingTheStoreAreRejected(t *testing.T) {
	store := newTestStore(t)

	hostile := []string{
		"",
		"/etc/passwd",
		"../outside.txt",
		"owner/../../outside.txt",
		"owner\\windows.txt",
		"owner/\x00null",
	}
	for _, key := range hostile {
		if err := store.Save(key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key error for %q, got %v", key, err)
		}
		if _, err := store.Open(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key error opening %q, got %v", key, err)
		}
	}
}

func TestExistsAndRemove(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("owner-1/100.pdf", strings.NewReader("bytes")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	exists, err := store.Exists("owner-1/100.pdf")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v, err=%v", exists, err)
	}

	if err := store.Remove("owner-1/100.pdf"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	exists, err = store.Exists("owner-1/100.pdf")
	if err != nil || exists {
		t.Fatalf("expected object to be gone, got %v, err=%v", exists, err)
	}
}
