// Package svc implements the ephemeral content store: code assignment,
// lazy expiration, the periodic sweep, and the capacity valve. Persistence
// goes through the db.KV interface; an in-memory index of live entries
// backs capacity accounting, collision checks, and listing.
package svc

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/metrics"
	"github.com/KazeTachinuu/copy-paste/pkg/domain"
	"github.com/KazeTachinuu/copy-paste/svc/cache"
	"github.com/KazeTachinuu/copy-paste/svc/db"
	"github.com/KazeTachinuu/copy-paste/svc/util"
)

// Store owns the code→paste mapping. All mutations serialize on a single
// mutex over the index, which makes collision-check-then-insert and
// check-then-evict-then-insert atomic: the live count never exceeds the
// configured capacity, and two creates can never win the same code.
type Store struct {
	kv  db.KV
	lru *cache.LRU
	cfg *cfg.Cfg

	mu    sync.Mutex
	index map[string]entryMeta

	now      func() time.Time
	sweeping atomic.Bool
}

type entryMeta struct {
	kind      domain.Kind
	createdAt time.Time
	expiresAt time.Time
	hasText   bool
	hasImage  bool
}

func NewStore(kv db.KV, lru *cache.LRU, c *cfg.Cfg) (*Store, error) {
	if kv == nil || lru == nil || c == nil {
		panic("store: nil dependency (kv, lru, or cfg)")
	}
	s := &Store{
		kv:    kv,
		lru:   lru,
		cfg:   c,
		index: make(map[string]entryMeta),
		now:   time.Now,
	}
	if err := s.loadIndex(context.Background()); err != nil {
		return nil, errors.Wrap(err, "load index")
	}
	return s, nil
}

// loadIndex rebuilds the live-entry index from the backend, so a durable
// backend survives process restarts without orphaning its rows.
func (s *Store) loadIndex(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue
			}
			return err
		}
		var p domain.Paste
		if err := json.Unmarshal(data, &p); err != nil {
			util.Warn().Err(err).Str("code", key).Msg("dropping unreadable entry")
			_ = s.kv.Delete(ctx, key)
			continue
		}
		if p.Expired(now) {
			_ = s.kv.Delete(ctx, key)
			continue
		}
		s.index[p.Code] = metaOf(&p)
	}
	if len(s.index) > 0 {
		util.Info().Int("entries", len(s.index)).Msg("store index rebuilt")
	}
	return nil
}

func metaOf(p *domain.Paste) entryMeta {
	return entryMeta{
		kind:      p.Kind,
		createdAt: p.CreatedAt,
		expiresAt: p.ExpiresAt,
		hasText:   p.Text != "",
		hasImage:  len(p.Image) > 0,
	}
}

func (s *Store) validate(params domain.CreateParams) error {
	if params.Text == "" && len(params.Image) == 0 {
		return domain.ErrContentRequired
	}
	if utf8.RuneCountInString(params.Text) > s.cfg.MaxTextLength {
		return domain.ErrTextTooLarge
	}
	if int64(len(params.Image)) > s.cfg.MaxImageBytes {
		return domain.ErrImageTooLarge
	}
	return nil
}

// Create stores a new paste, or updates an existing session paste in place.
// Session codes are caller-chosen; quick codes are minted here. The update
// path refreshes expiry; quick entries never do.
func (s *Store) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if err := s.validate(params); err != nil {
		return nil, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if params.SessionCode != "" {
		code := domain.NormalizeCode(params.SessionCode)
		if !domain.ValidCode(code, s.cfg.SessionCodeLength) {
			return nil, domain.ErrInvalidCode
		}
		if meta, live := s.liveLocked(ctx, code, now); live {
			// Overwrite in place and push the expiry out; no new
			// code is minted.
			p := &domain.Paste{
				Code:      code,
				Text:      params.Text,
				Image:     params.Image,
				ImageMIME: params.ImageMIME,
				Kind:      domain.KindSession,
				CreatedAt: meta.createdAt,
				ExpiresAt: now.Add(s.cfg.SessionTTL),
			}
			if err := s.persistLocked(ctx, p, now); err != nil {
				return nil, err
			}
			metrics.PasteUpdated.Inc()
			return p, nil
		}
		s.evictIfFullLocked(ctx)
		p := &domain.Paste{
			Code:      code,
			Text:      params.Text,
			Image:     params.Image,
			ImageMIME: params.ImageMIME,
			Kind:      domain.KindSession,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.SessionTTL),
		}
		if err := s.persistLocked(ctx, p, now); err != nil {
			return nil, err
		}
		metrics.PasteCreated.Inc()
		return p, nil
	}

	code, err := util.GenUniqueCode(s.cfg.QuickCodeLength, func(candidate string) (bool, error) {
		_, live := s.liveLocked(ctx, candidate, now)
		return live, nil
	})
	if err != nil {
		return nil, err
	}
	s.evictIfFullLocked(ctx)
	p := &domain.Paste{
		Code:      code,
		Text:      params.Text,
		Image:     params.Image,
		ImageMIME: params.ImageMIME,
		Kind:      domain.KindQuick,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.QuickTTL),
	}
	if err := s.persistLocked(ctx, p, now); err != nil {
		return nil, err
	}
	metrics.PasteCreated.Inc()
	return p, nil
}

func (s *Store) persistLocked(ctx context.Context, p *domain.Paste, now time.Time) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal paste")
	}
	if err := s.kv.Set(ctx, p.Code, data, p.ExpiresAt.Sub(now)); err != nil {
		util.Error().Err(err).Str("code", p.Code).Msg("backend set failed")
		return domain.ErrStoreUnavailable
	}
	s.index[p.Code] = metaOf(p)
	s.lru.Set(p)
	return nil
}

// liveLocked reports whether a code maps to a live entry. An expired entry
// found here is purged on the spot, freeing the code for reuse.
func (s *Store) liveLocked(ctx context.Context, code string, now time.Time) (entryMeta, bool) {
	meta, ok := s.index[code]
	if !ok {
		return entryMeta{}, false
	}
	if !now.Before(meta.expiresAt) {
		s.removeLocked(ctx, code)
		return entryMeta{}, false
	}
	return meta, true
}

func (s *Store) removeLocked(ctx context.Context, code string) {
	delete(s.index, code)
	s.lru.Delete(code)
	if err := s.kv.Delete(ctx, code); err != nil {
		util.Warn().Err(err).Str("code", code).Msg("backend delete failed")
	}
}

// evictIfFullLocked is the capacity valve: when the live count is at the
// cap, the entry with the oldest createdAt goes first. Expiry and the sweep
// remain the primary reclamation path; eviction only fires on overflow.
func (s *Store) evictIfFullLocked(ctx context.Context) {
	for len(s.index) >= s.cfg.MaxLivePastes {
		var oldest string
		var oldestAt time.Time
		for code, meta := range s.index {
			if oldest == "" || meta.createdAt.Before(oldestAt) {
				oldest = code
				oldestAt = meta.createdAt
			}
		}
		if oldest == "" {
			return
		}
		s.removeLocked(ctx, oldest)
		metrics.PasteEvicted.Inc()
		util.Info().Str("code", oldest).Msg("evicted oldest paste at capacity")
	}
}

// Get returns a live paste or ErrPasteNotFound. Expiration is enforced here
// regardless of whether the sweep has run; an expired entry found on the
// read path is purged as a side effect.
func (s *Store) Get(ctx context.Context, code string) (*domain.Paste, error) {
	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code, s.cfg.QuickCodeLength) && !domain.ValidCode(code, s.cfg.SessionCodeLength) {
		return nil, domain.ErrInvalidCode
	}
	now := s.now()

	if p := s.lru.Get(code); p != nil && !p.Expired(now) {
		metrics.CacheHits.Inc()
		metrics.PasteRetrieved.Inc()
		return p, nil
	}
	metrics.CacheMisses.Inc()

	data, err := s.kv.Get(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			s.mu.Lock()
			// Only drop the index entry if it is past expiry; a session
			// update racing this read may have just refreshed it.
			if meta, ok := s.index[code]; ok && !now.Before(meta.expiresAt) {
				delete(s.index, code)
			}
			s.mu.Unlock()
			return nil, domain.ErrPasteNotFound
		}
		util.Error().Err(err).Str("code", code).Msg("backend get failed")
		return nil, domain.ErrStoreUnavailable
	}
	var p domain.Paste
	if err := json.Unmarshal(data, &p); err != nil {
		util.Warn().Err(err).Str("code", code).Msg("purging unreadable entry")
		s.mu.Lock()
		s.removeLocked(ctx, code)
		s.mu.Unlock()
		return nil, domain.ErrPasteNotFound
	}
	if p.Expired(now) {
		s.mu.Lock()
		// Only purge if the index still agrees it is expired; a
		// concurrent session update may have refreshed it.
		if meta, ok := s.index[code]; ok && !now.Before(meta.expiresAt) {
			s.removeLocked(ctx, code)
		}
		s.mu.Unlock()
		return nil, domain.ErrPasteNotFound
	}
	s.lru.Set(&p)
	metrics.PasteRetrieved.Inc()
	return &p, nil
}

// List enumerates live entries, newest first, without exposing content.
func (s *Store) List(_ context.Context) []domain.PasteInfo {
	now := s.now()
	s.mu.Lock()
	infos := make([]domain.PasteInfo, 0, len(s.index))
	for code, meta := range s.index {
		if !now.Before(meta.expiresAt) {
			continue
		}
		infos = append(infos, domain.PasteInfo{
			Code:      code,
			Kind:      meta.kind,
			HasText:   meta.hasText,
			HasImage:  meta.hasImage,
			ExpiresAt: meta.expiresAt,
			ExpiresIn: int(meta.expiresAt.Sub(now).Seconds()),
		})
	}
	s.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ExpiresAt.After(infos[j].ExpiresAt)
	})
	return infos
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, meta := range s.index {
		if now.Before(meta.expiresAt) {
			n++
		}
	}
	return n
}

// SweepExpired removes every entry whose expiry has passed and returns the
// count. Expiry is re-checked per entry under the lock immediately before
// removal, so a session update racing the sweep wins: last writer on a code
// decides whether it lives.
func (s *Store) SweepExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	expired := make([]string, 0)
	for code, meta := range s.index {
		if !now.Before(meta.expiresAt) {
			expired = append(expired, code)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, code := range expired {
		s.mu.Lock()
		if meta, ok := s.index[code]; ok && !now.Before(meta.expiresAt) {
			s.removeLocked(ctx, code)
			removed++
		}
		s.mu.Unlock()
	}

	if purger, ok := s.kv.(db.Purger); ok {
		if _, err := purger.PurgeExpired(ctx); err != nil {
			util.Warn().Err(err).Msg("backend purge failed")
		}
	}

	metrics.SweepCycles.Inc()
	if removed > 0 {
		metrics.PasteSwept.Add(float64(removed))
	}
	return removed
}

// StartSweeper runs SweepExpired on a fixed interval until ctx is
// cancelled. At most one sweeper runs per store.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		return errors.New("sweeper already running")
	}
	go s.runSweeper(ctx, interval)
	return nil
}

func (s *Store) runSweeper(ctx context.Context, interval time.Duration) {
	defer s.sweeping.Store(false)
	sweepRequestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, sweepRequestID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", sweepRequestID).
		Dur("interval", interval).
		Msg("sweep worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", sweepRequestID).
				Msg("sweep worker shutting down")
			return
		case <-ticker.C:
			if removed := s.SweepExpired(ctx); removed > 0 {
				util.Info().
					Int("removed", removed).
					Str("request_id", sweepRequestID).
					Msg("sweep completed")
			}
		}
	}
}
