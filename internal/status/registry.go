package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-booking/internal/metrics"
)

type cacheEntry struct {
	id       int64
	loadedAt time.Time
}

// Registry maps status codes to storage ids. It is a read-through cache:
// entries older than ttl are reloaded on the next lookup, and Invalidate drops
// them immediately. A zero ttl keeps entries until invalidated.
type Registry struct {
	store   Store
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu     sync.RWMutex
	byCode map[Code]cacheEntry
}

func NewRegistry(store Store, ttl time.Duration, log *zap.Logger, m *metrics.Collector) *Registry {
	return &Registry{
		store:   store,
		ttl:     ttl,
		log:     log,
		metrics: m,
		now:     time.Now,
		byCode:  make(map[Code]cacheEntry),
	}
}

func (r *Registry) cached(code Code) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byCode[code]
	if !ok {
		return 0, false
	}
	if r.ttl > 0 && r.now().Sub(e.loadedAt) > r.ttl {
		return 0, false
	}
	return e.id, true
}

func (r *Registry) put(code Code, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byCode[code] = cacheEntry{id: id, loadedAt: r.now()}
}

// Resolve returns the storage id for code, querying the store at most once
// per cache lifetime.
func (r *Registry) Resolve(ctx context.Context, code Code) (int64, error) {
	if id, ok := r.cached(code); ok {
		r.metrics.StatusCacheLookups.WithLabelValues("hit").Inc()
		return id, nil
	}
	r.metrics.StatusCacheLookups.WithLabelValues("miss").Inc()

	st, err := r.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownStatus, code)
		}
		return 0, fmt.Errorf("load status %s: %w", code, err)
	}

	r.put(st.Code, st.ID)
	return st.ID, nil
}

// ResolveMany resolves codes concurrently. Ids are returned in input order.
func (r *Registry) ResolveMany(ctx context.Context, codes ...Code) ([]int64, error) {
	ids := make([]int64, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	for i, code := range codes {
		g.Go(func() error {
			id, err := r.Resolve(gctx, code)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Prime bulk-loads every status row. Called once at startup.
func (r *Registry) Prime(ctx context.Context) error {
	all, err := r.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("prime status cache: %w", err)
	}

	for _, st := range all {
		r.put(st.Code, st.ID)
	}

	r.log.Info("status cache primed", zap.Int("statuses", len(all)))
	return nil
}

// Invalidate drops the given codes, or everything when none are given.
// Call it after writing to the status table.
func (r *Registry) Invalidate(codes ...Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(codes) == 0 {
		r.byCode = make(map[Code]cacheEntry)
		return
	}

	for _, c := range codes {
		delete(r.byCode, c)
	}
}

// All lists the status table, uncached. It backs a rarely used reference endpoint.
func (r *Registry) All(ctx context.Context) ([]Status, error) {
	all, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return all, nil
}
