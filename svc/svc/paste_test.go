package svc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/pkg/domain"
	"github.com/KazeTachinuu/copy-paste/svc/cache"
	"github.com/KazeTachinuu/copy-paste/svc/db"
)

func testCfg() *cfg.Cfg {
	return &cfg.Cfg{
		QuickCodeLength:   4,
		SessionCodeLength: 5,
		QuickTTL:          15 * time.Minute,
		SessionTTL:        time.Hour,
		MaxTextLength:     1000,
		MaxImageBytes:     1024,
		MaxLivePastes:     500,
		LRUCacheSize:      100,
	}
}

func newTestStore(t *testing.T, c *cfg.Cfg) *Store {
	t.Helper()
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	s, err := NewStore(db.NewMemory(), lru, c)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateAndGetQuick(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	p, err := s.Create(ctx, domain.CreateParams{Text: "hello world"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(p.Code) != 4 {
		t.Errorf("quick code %q has length %d, want 4", p.Code, len(p.Code))
	}
	for _, c := range p.Code {
		if !strings.ContainsRune(domain.Alphabet, c) {
			t.Errorf("code character %q outside the alphabet", c)
		}
	}
	if p.Kind != domain.KindQuick {
		t.Errorf("kind = %q, want quick", p.Kind)
	}
	if want := p.CreatedAt.Add(15 * time.Minute); !p.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", p.ExpiresAt, want)
	}

	got, err := s.Get(ctx, p.Code)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != "hello world" {
		t.Errorf("Get text = %q", got.Text)
	}
}

func TestGetIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	p, err := s.Create(ctx, domain.CreateParams{Text: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Get(ctx, "  "+strings.ToLower(p.Code)+" "); err != nil {
		t.Errorf("lowercased code with whitespace rejected: %v", err)
	}
}

func TestGetRejectsMalformedCodes(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	for _, code := range []string{"", "ABC", "ABCDEF", "AB!D", "ACD0"} {
		if _, err := s.Get(ctx, code); !errors.Is(err, domain.ErrInvalidCode) {
			t.Errorf("Get(%q): got %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestGetUnknownCode(t *testing.T) {
	s := newTestStore(t, testCfg())
	if _, err := s.Get(context.Background(), "ACDE"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("got %v, want ErrPasteNotFound", err)
	}
}

func TestCreateValidation(t *testing.T) {
	c := testCfg()
	c.MaxTextLength = 10
	s := newTestStore(t, c)
	ctx := context.Background()

	if _, err := s.Create(ctx, domain.CreateParams{}); !errors.Is(err, domain.ErrContentRequired) {
		t.Errorf("empty params: got %v, want ErrContentRequired", err)
	}
	long := strings.Repeat("a", 11)
	if _, err := s.Create(ctx, domain.CreateParams{Text: long}); !errors.Is(err, domain.ErrTextTooLarge) {
		t.Errorf("long text: got %v, want ErrTextTooLarge", err)
	}
	big := make([]byte, c.MaxImageBytes+1)
	if _, err := s.Create(ctx, domain.CreateParams{Image: big, ImageMIME: "image/png"}); !errors.Is(err, domain.ErrImageTooLarge) {
		t.Errorf("big image: got %v, want ErrImageTooLarge", err)
	}
}

func TestTextLimitCountsRunes(t *testing.T) {
	c := testCfg()
	c.MaxTextLength = 5
	s := newTestStore(t, c)

	// five multibyte runes are within the limit even though the byte
	// count is three times larger
	if _, err := s.Create(context.Background(), domain.CreateParams{Text: "ありがとう"}); err != nil {
		t.Errorf("five runes rejected: %v", err)
	}
}

func TestSessionCreate(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	p, err := s.Create(ctx, domain.CreateParams{Text: "session content", SessionCode: "acdef"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Code != "ACDEF" {
		t.Errorf("code = %q, want normalized ACDEF", p.Code)
	}
	if p.Kind != domain.KindSession {
		t.Errorf("kind = %q, want session", p.Kind)
	}
	if want := p.CreatedAt.Add(time.Hour); !p.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", p.ExpiresAt, want)
	}
}

func TestSessionCreateRejectsBadCodes(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	for _, code := range []string{"ABC", "ACDEFG", "ACDE1", "ACDE!"} {
		_, err := s.Create(ctx, domain.CreateParams{Text: "x", SessionCode: code})
		if !errors.Is(err, domain.ErrInvalidCode) {
			t.Errorf("session code %q: got %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestSessionUpdateInPlace(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	first, err := s.Create(ctx, domain.CreateParams{Text: "v1", SessionCode: "ACDEF"})
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	t1 := t0.Add(10 * time.Minute)
	s.now = func() time.Time { return t1 }
	second, err := s.Create(ctx, domain.CreateParams{Text: "v2", SessionCode: "ACDEF"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("update must keep the original CreatedAt: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if want := t1.Add(time.Hour); !second.ExpiresAt.Equal(want) {
		t.Errorf("update must push expiry out: got %v, want %v", second.ExpiresAt, want)
	}

	got, err := s.Get(ctx, "ACDEF")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != "v2" {
		t.Errorf("content not replaced: %q", got.Text)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d after in-place update, want 1", s.Count())
	}
}

func TestQuickPasteExpires(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	p, err := s.Create(ctx, domain.CreateParams{Text: "short lived"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.now = func() time.Time { return t0.Add(14 * time.Minute) }
	if _, err := s.Get(ctx, p.Code); err != nil {
		t.Fatalf("paste expired early: %v", err)
	}

	s.now = func() time.Time { return t0.Add(15 * time.Minute) }
	if _, err := s.Get(ctx, p.Code); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("paste at its deadline: got %v, want ErrPasteNotFound", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d after lazy purge, want 0", s.Count())
	}
}

func TestExpiredSessionCodeIsReusable(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	if _, err := s.Create(ctx, domain.CreateParams{Text: "old", SessionCode: "ACDEF"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t1 := t0.Add(2 * time.Hour)
	s.now = func() time.Time { return t1 }
	p, err := s.Create(ctx, domain.CreateParams{Text: "new", SessionCode: "ACDEF"})
	if err != nil {
		t.Fatalf("reuse after expiry failed: %v", err)
	}
	if !p.CreatedAt.Equal(t1) {
		t.Errorf("reused code must start a fresh paste: CreatedAt = %v, want %v", p.CreatedAt, t1)
	}
	got, err := s.Get(ctx, "ACDEF")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != "new" {
		t.Errorf("stale content survived reuse: %q", got.Text)
	}
}

func TestReadOfMissingBackendKeyKeepsFreshIndexEntry(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	if _, err := s.Create(ctx, domain.CreateParams{Text: "fresh", SessionCode: "ACDEF"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The backend dropped the key out from under a live entry, as a
	// native TTL firing just before a session refresh would.
	s.lru.Delete("ACDEF")
	if err := s.kv.Delete(ctx, "ACDEF"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.Get(ctx, "ACDEF"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("got %v, want ErrPasteNotFound", err)
	}
	if s.Count() != 1 {
		t.Errorf("unexpired index entry dropped on a backend miss: Count = %d, want 1", s.Count())
	}

	// Once the entry actually expires, the same read path purges it.
	s.now = func() time.Time { return t0.Add(2 * time.Hour) }
	if _, err := s.Get(ctx, "ACDEF"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("got %v, want ErrPasteNotFound", err)
	}
	s.mu.Lock()
	_, indexed := s.index["ACDEF"]
	s.mu.Unlock()
	if indexed {
		t.Error("expired index entry survived the read-path purge")
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	c := testCfg()
	c.MaxLivePastes = 3
	s := newTestStore(t, c)
	ctx := context.Background()
	t0 := time.Now()

	codes := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		tick := t0.Add(time.Duration(i) * time.Second)
		s.now = func() time.Time { return tick }
		p, err := s.Create(ctx, domain.CreateParams{Text: "entry"})
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		codes = append(codes, p.Code)
	}

	if s.Count() != 3 {
		t.Errorf("Count = %d at capacity, want 3", s.Count())
	}
	if _, err := s.Get(ctx, codes[0]); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("oldest paste survived eviction: %v", err)
	}
	for _, code := range codes[1:] {
		if _, err := s.Get(ctx, code); err != nil {
			t.Errorf("recent paste %q evicted: %v", code, err)
		}
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	quick, err := s.Create(ctx, domain.CreateParams{Text: "q"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, domain.CreateParams{Image: []byte{1, 2}, ImageMIME: "image/png", SessionCode: "ACDEF"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	infos := s.List(ctx)
	if len(infos) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(infos))
	}
	// session TTL outlives quick TTL, so the session entry sorts first
	if infos[0].Code != "ACDEF" || infos[0].Kind != domain.KindSession {
		t.Errorf("first entry = %+v, want the session paste", infos[0])
	}
	if infos[0].HasImage != true || infos[0].HasText != false {
		t.Errorf("session entry content flags wrong: %+v", infos[0])
	}
	if infos[1].Code != quick.Code || !infos[1].HasText || infos[1].HasImage {
		t.Errorf("quick entry wrong: %+v", infos[1])
	}
	if infos[1].ExpiresIn <= 0 || infos[1].ExpiresIn > 15*60 {
		t.Errorf("ExpiresIn = %d, want within the quick TTL", infos[1].ExpiresIn)
	}

	// content never leaks through the listing
	for _, info := range infos {
		if info.Code == "" || info.ExpiresAt.IsZero() {
			t.Errorf("listing entry incomplete: %+v", info)
		}
	}

	s.now = func() time.Time { return t0.Add(30 * time.Minute) }
	infos = s.List(ctx)
	if len(infos) != 1 || infos[0].Code != "ACDEF" {
		t.Errorf("expired quick paste still listed: %+v", infos)
	}
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()
	t0 := time.Now()
	s.now = func() time.Time { return t0 }

	for i := 0; i < 3; i++ {
		if _, err := s.Create(ctx, domain.CreateParams{Text: "q"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := s.Create(ctx, domain.CreateParams{Text: "s", SessionCode: "ACDEF"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.now = func() time.Time { return t0.Add(20 * time.Minute) }
	removed := s.SweepExpired(ctx)
	if removed != 3 {
		t.Errorf("sweep removed %d entries, want 3", removed)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d after sweep, want 1", s.Count())
	}
	if removed = s.SweepExpired(ctx); removed != 0 {
		t.Errorf("second sweep removed %d entries, want 0", removed)
	}
}

func TestIndexRebuildAfterRestart(t *testing.T) {
	c := testCfg()
	kv := db.NewMemory()
	ctx := context.Background()

	lru1, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	s1, err := NewStore(kv, lru1, c)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s1.Create(ctx, domain.CreateParams{Text: "survives restart"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	lru2, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	s2, err := NewStore(kv, lru2, c)
	if err != nil {
		t.Fatalf("NewStore on warm backend: %v", err)
	}
	if s2.Count() != 1 {
		t.Errorf("rebuilt Count = %d, want 1", s2.Count())
	}
	got, err := s2.Get(ctx, p.Code)
	if err != nil {
		t.Fatalf("Get after rebuild failed: %v", err)
	}
	if got.Text != "survives restart" {
		t.Errorf("Get text = %q", got.Text)
	}

	// the rebuilt index must also guard session code collisions
	if _, err := s2.Create(ctx, domain.CreateParams{Text: "y", SessionCode: "ACDEF"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func TestConcurrentCreatesMintUniqueCodes(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	codes := make(map[string]int)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Create(ctx, domain.CreateParams{Text: "concurrent"})
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			mu.Lock()
			codes[p.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(codes) != n {
		t.Errorf("%d distinct codes for %d creates", len(codes), n)
	}
	for code, count := range codes {
		if count > 1 {
			t.Errorf("code %q minted %d times", code, count)
		}
	}
	if s.Count() != n {
		t.Errorf("Count = %d, want %d", s.Count(), n)
	}
}

func TestStartSweeperSingleton(t *testing.T) {
	s := newTestStore(t, testCfg())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.StartSweeper(ctx, time.Hour); err != nil {
		t.Fatalf("StartSweeper failed: %v", err)
	}
	if err := s.StartSweeper(ctx, time.Hour); err == nil {
		t.Error("second StartSweeper must be rejected")
	}
}
