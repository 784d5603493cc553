package cache

import (
	"testing"
	"time"

	"github.com/KazeTachinuu/copy-paste/pkg/domain"
)

func testPaste(code string, ttl time.Duration) *domain.Paste {
	now := time.Now()
	return &domain.Paste{
		Code:      code,
		Text:      "content for " + code,
		Kind:      domain.KindQuick,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestLRUSetGet(t *testing.T) {
	l, err := NewLRU(10)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	p := testPaste("ABCD", time.Hour)
	l.Set(p)

	got := l.Get("ABCD")
	if got == nil {
		t.Fatal("Get returned nil for cached paste")
	}
	if got.Text != p.Text {
		t.Errorf("Get returned wrong paste: %q", got.Text)
	}
	if l.Get("NOPE") != nil {
		t.Error("Get returned a paste for an unknown code")
	}
}

func TestLRUExpiredEntryDropped(t *testing.T) {
	l, err := NewLRU(10)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	l.Set(testPaste("ABCD", -time.Second))
	if l.Get("ABCD") != nil {
		t.Error("cache served an entry past the paste expiry")
	}
}

func TestLRUDelete(t *testing.T) {
	l, err := NewLRU(10)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	l.Set(testPaste("ABCD", time.Hour))
	l.Delete("ABCD")
	if l.Get("ABCD") != nil {
		t.Error("Get returned a deleted entry")
	}
}

func TestLRUEvictsAtCapacity(t *testing.T) {
	l, err := NewLRU(2)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	l.Set(testPaste("AAAA", time.Hour))
	l.Set(testPaste("BBBB", time.Hour))
	l.Set(testPaste("CCCC", time.Hour))

	if l.Get("AAAA") != nil {
		t.Error("oldest entry should have been evicted at capacity")
	}
	if l.Get("BBBB") == nil || l.Get("CCCC") == nil {
		t.Error("recent entries evicted unexpectedly")
	}
}

func TestLRUSizeValidation(t *testing.T) {
	if _, err := NewLRU(0); err == nil {
		t.Error("zero size must be rejected")
	}
	if _, err := NewLRU(-1); err == nil {
		t.Error("negative size must be rejected")
	}
	if _, err := NewLRU(200000); err == nil {
		t.Error("oversized cache must be rejected")
	}
}
