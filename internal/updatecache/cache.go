// Package updatecache is rrdb's equivalent of rrdcached: it batches
// updates to one or more open databases, applies them in timestamp
// order on a flush tick, and fans out a CommitResult per applied update
// to any subscriber. The batching and fan-out shape is adapted from the
// teacher project's collector package; here it governs database writes
// instead of probe results.
package updatecache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/rrd"
)

// CommitResult reports the outcome of one applied update.
type CommitResult struct {
	Path  string
	Time  int64
	Error error
}

type pendingUpdate struct {
	time   int64
	values []string
}

// Cache batches updates per database path and flushes them periodically.
type Cache struct {
	flushInterval time.Duration

	mu      sync.Mutex
	dbs     map[string]*rrd.Database
	pending map[string][]pendingUpdate

	subscribers map[chan CommitResult]struct{}
	subMu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Cache that flushes pending updates every flushInterval.
func New(flushInterval time.Duration) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		flushInterval: flushInterval,
		dbs:           make(map[string]*rrd.Database),
		pending:       make(map[string][]pendingUpdate),
		subscribers:   make(map[chan CommitResult]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Register associates an already-open database with path so Submit can
// enqueue updates against it.
func (c *Cache) Register(path string, db *rrd.Database) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbs[path] = db
}

// Unregister drops path from the cache. Pending updates for it are
// discarded.
func (c *Cache) Unregister(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dbs, path)
	delete(c.pending, path)
}

// Submit enqueues one update for path, applied on the next flush tick.
func (c *Cache) Submit(path string, t int64, values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dbs[path]; !ok {
		return fmt.Errorf("updatecache: database %q is not registered", path)
	}
	c.pending[path] = append(c.pending[path], pendingUpdate{time: t, values: values})
	return nil
}

// Start begins the flush loop.
func (c *Cache) Start() {
	ticker := time.NewTicker(c.flushInterval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.flush()
			}
		}
	}()
}

// Stop halts the flush loop, applies any remaining pending updates, and
// closes every subscriber channel.
func (c *Cache) Stop() {
	c.cancel()
	c.wg.Wait()
	c.flush()

	c.subMu.Lock()
	for ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, ch)
	}
	c.subMu.Unlock()
}

// Subscribe returns a channel that receives a CommitResult for every
// applied update, across every registered database.
func (c *Cache) Subscribe() <-chan CommitResult {
	ch := make(chan CommitResult, 100)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber.
func (c *Cache) Unsubscribe(ch <-chan CommitResult) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for subCh := range c.subscribers {
		if subCh == ch {
			close(subCh)
			delete(c.subscribers, subCh)
			return
		}
	}
}

// flush applies every database's pending updates, oldest first, and
// publishes one CommitResult per applied update.
func (c *Cache) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string][]pendingUpdate)
	dbs := make(map[string]*rrd.Database, len(c.dbs))
	for k, v := range c.dbs {
		dbs[k] = v
	}
	c.mu.Unlock()

	for path, updates := range batch {
		db, ok := dbs[path]
		if !ok {
			continue
		}
		sort.Slice(updates, func(i, j int) bool { return updates[i].time < updates[j].time })
		for _, u := range updates {
			err := db.CreateSample().SetTime(u.time).SetValues(u.values...).Update()
			logging.UpdateResult(path, u.time, err == nil, errString(err))
			c.publish(CommitResult{Path: path, Time: u.time, Error: err})
		}
	}
}

func (c *Cache) publish(result CommitResult) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subscribers {
		select {
		case ch <- result:
		default:
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
