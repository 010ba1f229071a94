package leafid

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// IDGen is the public surface of the engine: it owns the tag->buffer
// cache, resolves and refills buffers against a Dao, and runs the
// periodic reconciliation loop. The zero value is not usable; build
// one with New.
type IDGen struct {
	dao    Dao
	config Config
	log    *zap.Logger

	cache *xsync.MapOf[int32, *SegmentBuffer]
	sf    singleflight.Group

	mu     sync.RWMutex // guards initOk and the reconciler lifecycle below
	initOk bool

	cancel  context.CancelFunc
	eg      *errgroup.Group
	closed  bool
	stopped chan struct{}
}

// New returns a non-ready IDGen. Call Init before the first Get.
func New(dao Dao, config Config) *IDGen {
	return &IDGen{
		dao:     dao,
		config:  config,
		log:     config.logger,
		cache:   xsync.NewMapOf[int32, *SegmentBuffer](),
		stopped: make(chan struct{}),
	}
}

// Init warms the cache and starts the periodic reconciler. In eager
// mode (the default) it loads every tag from the database and inserts
// an empty SegmentBuffer per tag before returning; in lazy mode it
// starts a lighter reconciliation loop and returns immediately. Init
// must succeed before Get will serve requests.
func (g *IDGen) Init(ctx context.Context) error {
	g.log.Info("leafid: init")
	if !g.config.IsLazy() {
		if err := g.reconcileCacheWithDB(ctx); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.initOk = true
	g.mu.Unlock()

	g.startReconciler()
	return nil
}

// Get returns the next ID for tag.
func (g *IDGen) Get(ctx context.Context, tag int32) (int64, error) {
	g.mu.RLock()
	ready := g.initOk
	g.mu.RUnlock()
	if !ready {
		return 0, ErrServiceNotReady
	}

	buf, err := g.resolveBuffer(ctx, tag)
	if err != nil {
		return 0, err
	}

	buf.mu.Lock()
	if !buf.initOk {
		if err := g.refillLocked(ctx, buf, false, true); err != nil {
			buf.mu.Unlock()
			return 0, err
		}
	}

	val, done := g.tryReserve(buf)
	if done {
		buf.mu.Unlock()
		return val, nil
	}

	// Exhaustion path (spec.md §4.3.2 step 5): the fast reserve above
	// failed. If a background fill is in flight, release the lock and
	// wait for it to finish before retrying, so we don't block a
	// refill that needs the same lock to install its result.
	if buf.bgTaskIsRunning() {
		ch := buf.waitChannel()
		buf.mu.Unlock()
		g.waitForCompletion(ctx, ch)
		buf.mu.Lock()
	}

	val, done = g.tryReserve(buf)
	if done {
		buf.mu.Unlock()
		return val, nil
	}

	if buf.nextReady {
		g.log.Info("leafid: buffer switched", zap.Int32("tag", tag))
		buf.switchBuffer()
		buf.nextReady = false
		val := buf.current().reserve()
		buf.mu.Unlock()
		return val, nil
	}

	buf.mu.Unlock()
	return 0, ErrBothSegmentsNotReady
}

// tryReserve attempts to claim the next value from buf's current
// segment. Caller must hold buf.mu. It also evaluates the pre-fetch
// trigger and schedules a background refill when warranted.
func (g *IDGen) tryReserve(buf *SegmentBuffer) (val int64, ok bool) {
	seg := buf.current()

	if !buf.nextReady && seg.Idle() < int64(seg.Step())*9/10 && buf.tryAcquireBgTask() {
		g.spawnBackgroundRefill(buf)
	}

	v := seg.reserve()
	if v < seg.Max() {
		return v, true
	}
	return 0, false
}

// spawnBackgroundRefill runs a database refill of buf's next segment
// on its own goroutine so the caller that triggered it is never
// blocked on the database round trip. Errors are logged and swallowed
// per spec.md §7 — the subsequent exhaustion-path retry will either
// succeed or surface ErrBothSegmentsNotReady.
func (g *IDGen) spawnBackgroundRefill(buf *SegmentBuffer) {
	go func() {
		ctx := context.Background()
		buf.mu.Lock()
		err := g.refillLocked(ctx, buf, true, false)
		if err != nil {
			g.log.Error("leafid: background refill failed",
				zap.Int32("tag", buf.tag), zap.Error(err))
			buf.finishBgTask()
			buf.mu.Unlock()
			return
		}
		buf.nextReady = true
		buf.finishBgTask()
		buf.mu.Unlock()
		g.log.Info("leafid: buffer next segment refilled", zap.Int32("tag", buf.tag))
	}()
}

// waitForCompletion blocks until ch closes, ctx is done, or a bounded
// spin-and-sleep fallback gives up waiting and returns anyway (the
// caller re-checks buffer state regardless, per spec.md §5).
func (g *IDGen) waitForCompletion(ctx context.Context, ch <-chan struct{}) {
	select {
	case <-ch:
		return
	case <-ctx.Done():
		return
	default:
	}

	const spinLimit = 10_000
	for i := 0; i < spinLimit; i++ {
		select {
		case <-ch:
			return
		case <-ctx.Done():
			return
		default:
		}
	}

	timer := time.NewTimer(10 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ch:
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Update forces a refill of tag's current segment from the database.
// Useful to recover a buffer stuck in a degraded state.
func (g *IDGen) Update(ctx context.Context, tag int32) error {
	buf, err := g.resolveBuffer(ctx, tag)
	if err != nil {
		return err
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return g.refillLocked(ctx, buf, false, false)
}

// Remove drops tag's cached buffer, if any, and reports whether it
// existed. Useful in lazy mode, or under operator control.
func (g *IDGen) Remove(tag int32) bool {
	_, existed := g.cache.LoadAndDelete(tag)
	return existed
}

// resolveBuffer looks up tag in the cache. In eager mode a miss is
// ErrTagNotExist. In lazy mode a miss first confirms the tag exists in
// the database, then double-checked-inserts an empty buffer;
// singleflight collapses concurrent first-time lookups for the same
// tag onto one dao.Leaf call and one insert.
func (g *IDGen) resolveBuffer(ctx context.Context, tag int32) (*SegmentBuffer, error) {
	if buf, ok := g.cache.Load(tag); ok {
		return buf, nil
	}
	if !g.config.IsLazy() {
		return nil, ErrTagNotExist
	}

	key := tagKey(tag)
	v, err, _ := g.sf.Do(key, func() (interface{}, error) {
		if buf, ok := g.cache.Load(tag); ok {
			return buf, nil
		}
		if _, err := g.dao.Leaf(ctx, tag); err != nil {
			return nil, wrapDaoErr("leaf", tag, err)
		}
		buf, _ := g.cache.LoadOrStore(tag, newSegmentBuffer(tag))
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SegmentBuffer), nil
}

// refillLocked runs the database refill algorithm of spec.md §4.3.5.
// Caller must hold buf.mu.
func (g *IDGen) refillLocked(ctx context.Context, buf *SegmentBuffer, isNext, isInit bool) error {
	if isInit && buf.initOk {
		return nil
	}

	var leaf Leaf
	var err error

	if !buf.initOk {
		leaf, err = g.dao.UpdateMax(ctx, buf.tag)
		if err != nil {
			return wrapDaoErr("update_max", buf.tag, err)
		}
		buf.step = leaf.Step
		buf.minStep = leaf.Step
		buf.initOk = true
		buf.updatedAt = time.Now()
	} else {
		duration := time.Since(buf.updatedAt)
		step := buf.step
		nextStep := step
		switch {
		case duration < g.config.SegmentDuration() && int64(step)*2 <= int64(g.config.MaxStep()):
			nextStep = step * 2
		case duration >= 2*g.config.SegmentDuration() && step/2 >= buf.minStep:
			nextStep = step / 2
		}

		g.log.Info("leafid: adaptive refill",
			zap.Int32("tag", buf.tag),
			zap.Int32("step", step),
			zap.Duration("duration", duration),
			zap.Int32("next_step", nextStep))

		leaf, err = g.dao.UpdateMaxByStep(ctx, buf.tag, nextStep)
		if err != nil {
			return wrapDaoErr("update_max_by_step", buf.tag, err)
		}
		buf.updatedAt = time.Now()
		buf.step = nextStep
		buf.minStep = leaf.Step
	}

	step := buf.step
	var seg *Segment
	if isNext {
		seg = buf.next()
	} else {
		seg = buf.current()
	}
	seg.install(leaf.MaxID-int64(step), leaf.MaxID, step)
	return nil
}

// startReconciler launches the periodic cache reconciliation loop
// (spec.md §4.3.6), supervised by an errgroup so Close can cancel it
// cleanly. In lazy mode the loop only sweeps locally stale buffers; it
// never contacts the database.
func (g *IDGen) startReconciler() {
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	g.mu.Lock()
	if g.cancel != nil {
		// Already started by an earlier Init.
		g.mu.Unlock()
		cancel()
		return
	}
	g.cancel = cancel
	g.eg = eg
	g.mu.Unlock()

	eg.Go(func() error {
		ticker := time.NewTicker(g.config.UpdateCacheInterval())
		defer ticker.Stop()
		for {
			select {
			case <-egCtx.Done():
				return nil
			case <-ticker.C:
				if g.config.IsLazy() {
					g.sweepStaleLazyBuffers()
					continue
				}
				if err := g.reconcileCacheWithDB(context.Background()); err != nil {
					g.log.Error("leafid: periodic reconciliation failed", zap.Error(err))
				}
			}
		}
	})
}

// reconcileCacheWithDB pulls the current tag set from the database and
// applies a symmetric diff against the cache: inserts empty buffers
// for new tags, removes buffers for tags that no longer exist.
func (g *IDGen) reconcileCacheWithDB(ctx context.Context) error {
	g.log.Info("leafid: reconciling cache with database")
	dbTags, err := g.dao.Tags(ctx)
	if err != nil {
		return wrapDaoErr("tags", 0, err)
	}

	present := make(map[int32]struct{}, len(dbTags))
	for _, t := range dbTags {
		present[t] = struct{}{}
		if _, ok := g.cache.Load(t); !ok {
			g.log.Info("leafid: adding tag to cache", zap.Int32("tag", t))
			g.cache.Store(t, newSegmentBuffer(t))
		}
	}

	g.cache.Range(func(tag int32, _ *SegmentBuffer) bool {
		if _, ok := present[tag]; !ok {
			g.log.Info("leafid: removing tag from cache", zap.Int32("tag", tag))
			g.cache.Delete(tag)
		}
		return true
	})
	return nil
}

// sweepStaleLazyBuffers evicts lazily-created buffers that have not
// been refilled in more than defaultCleanupGrace update intervals,
// bounding cache growth in lazy mode (spec.md §9, "Lazy-mode cleanup";
// see DESIGN.md for the policy rationale).
func (g *IDGen) sweepStaleLazyBuffers() {
	cutoff := time.Now().Add(-time.Duration(defaultCleanupGrace) * g.config.UpdateCacheInterval())
	g.cache.Range(func(tag int32, buf *SegmentBuffer) bool {
		buf.mu.Lock()
		stale := buf.initOk && buf.updatedAt.Before(cutoff)
		buf.mu.Unlock()
		if stale {
			g.log.Info("leafid: evicting stale lazy buffer", zap.Int32("tag", tag))
			g.cache.Delete(tag)
		}
		return true
	})
}

// Close stops the periodic reconciler. It does not close the Dao. It is
// safe to call more than once.
func (g *IDGen) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	cancel := g.cancel
	eg := g.eg
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if eg != nil {
		_ = eg.Wait()
	}
	close(g.stopped)
	return nil
}

// tagKey renders tag as a singleflight key.
func tagKey(tag int32) string {
	return "tag:" + strconv.FormatInt(int64(tag), 10)
}
