package cache

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/KazeTachinuu/copy-paste/pkg/domain"
)

// LRU is a read-through cache keyed by paste code. Entries carry the paste
// expiry so a stale hit can never outlive the paste itself.
type LRU struct {
	c  *lru.Cache[string, item]
	mu sync.Mutex
}

type item struct {
	paste *domain.Paste
	exp   time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(code string) *domain.Paste {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(code)
	if !ok {
		return nil
	}
	if !time.Now().Before(it.exp) {
		l.c.Remove(code)
		return nil
	}
	return it.paste
}

func (l *LRU) Set(p *domain.Paste) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.Code, item{paste: p, exp: p.ExpiresAt})
}

func (l *LRU) Delete(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(code)
}
