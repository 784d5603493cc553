package db

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Set(ctx, "ABCD", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get = %q, want hello", got)
	}

	ok, err := s.Exists(ctx, "ABCD")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}

	if err := s.Delete(ctx, "ABCD"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "ABCD"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after delete: got %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Set(ctx, "ABCD", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "ABCD", []byte("v2"), time.Hour); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	got, err := s.Get(ctx, "ABCD")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("Get = %q, want v2 after upsert", got)
	}
}

func TestSQLiteExpiredRowInvisible(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Set(ctx, "ABCD", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := s.Get(ctx, "ABCD"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get past expiry: got %v, want ErrKeyNotFound", err)
	}
	if ok, _ := s.Exists(ctx, "ABCD"); ok {
		t.Error("Exists must report false past expiry")
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys = %v, want empty", keys)
	}
}

func TestSQLiteZeroTTLPersists(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Set(ctx, "PERM", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := s.Get(ctx, "PERM"); err != nil {
		t.Errorf("zero-TTL row missing: %v", err)
	}
}

func TestSQLitePurgeExpired(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	s.Set(ctx, "A", []byte("a"), 10*time.Millisecond)
	s.Set(ctx, "B", []byte("b"), 10*time.Millisecond)
	s.Set(ctx, "C", []byte("c"), time.Hour)
	time.Sleep(30 * time.Millisecond)

	purged, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged %d rows, want 2", purged)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "C" {
		t.Errorf("Keys = %v, want [C]", keys)
	}
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "KEEP", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "KEEP")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want v", got)
	}
}
