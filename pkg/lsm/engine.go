package lsm

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dd0wney/cluso-ledger/pkg/logging"
	"github.com/dd0wney/cluso-ledger/pkg/metrics"
	"github.com/dd0wney/cluso-ledger/pkg/pools"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	DataDir              string
	MemtableCapacity     int // records per memtable buffer
	CompactionStrategy   CompactionStrategy
	EnableAutoCompaction bool
	Logger               logging.Logger
	Metrics              *metrics.Registry
}

// DefaultEngineOptions returns sensible defaults for an Engine rooted at
// dataDir.
func DefaultEngineOptions(dataDir string) EngineOptions {
	return EngineOptions{
		DataDir:              dataDir,
		MemtableCapacity:     65536,
		CompactionStrategy:   DefaultLeveledCompaction(),
		EnableAutoCompaction: true,
		Logger:               logging.DefaultLogger().With(logging.Component("lsm")),
		Metrics:              metrics.DefaultRegistry(),
	}
}

// Engine is the ledger storage engine. It holds a pair of TableMemory
// buffers that trade places between the Mutable and Immutable roles as
// writes fill one and a background worker flushes the other to an
// SSTable, plus the on-disk levels and block cache that serve reads the
// memtables can't.
type Engine struct {
	mu sync.Mutex

	policy    LedgerRecordPolicy
	allocator Allocator[LedgerEntry]
	buffers   [2]*TableMemory[LedgerKey, LedgerEntry]
	activeIdx int
	flushing  bool
	cond      *sync.Cond

	levels [][]*SSTable
	cache  *BlockCache

	dataDir            string
	compactionStrategy CompactionStrategy
	compactor          *Compactor
	nextSnapshot       uint64

	flushChan      chan struct{}
	compactionChan chan struct{}
	stopChan       chan struct{}
	wg             sync.WaitGroup

	logger  logging.Logger
	metrics *metrics.Registry
}

// NewEngine opens (or creates) a ledger storage engine rooted at
// opts.DataDir.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	levels, err := ListSSTables(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("list sstables: %w", err)
	}

	allocator := pools.NewSlabAllocator[LedgerEntry]()
	policy := NewLedgerRecordPolicy(opts.MemtableCapacity)

	active, err := Create[LedgerKey, LedgerEntry](allocator, policy, InitialMutable, "active")
	if err != nil {
		return nil, err
	}
	standby, err := Create[LedgerKey, LedgerEntry](allocator, policy, InitialImmutableFlushed, "standby")
	if err != nil {
		active.Destroy()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger().With(logging.Component("lsm"))
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	e := &Engine{
		policy:             policy,
		allocator:          allocator,
		buffers:            [2]*TableMemory[LedgerKey, LedgerEntry]{active, standby},
		levels:             levels,
		cache:              NewBlockCache(10000),
		dataDir:            opts.DataDir,
		compactionStrategy: opts.CompactionStrategy,
		compactor:          NewCompactor(opts.DataDir, opts.CompactionStrategy),
		flushChan:          make(chan struct{}, 1),
		compactionChan:     make(chan struct{}, 1),
		stopChan:           make(chan struct{}),
		logger:             logger,
		metrics:            reg,
	}
	e.cond = sync.NewCond(&e.mu)

	if opts.EnableAutoCompaction {
		e.wg.Add(2)
		go e.flushWorker()
		go e.compactionWorker()
	}

	return e, nil
}

func cacheKeyFor(key LedgerKey) string {
	return string(EncodeKey(key))
}

// Put writes a ledger entry, rotating the active memtable to the disk
// write path when it reaches capacity.
func (e *Engine) Put(entry LedgerEntry) error {
	e.mu.Lock()

	active := e.buffers[e.activeIdx]
	if active.Len() >= active.Capacity() {
		e.rotateLocked()
		active = e.buffers[e.activeIdx]
	}

	e.cache.Delete(cacheKeyFor(e.policy.KeyOf(entry)))
	active.Put(entry)
	e.metrics.RecordPut(active.Label())
	e.metrics.SetMemtableSize(active.Len(), active.Capacity())

	e.mu.Unlock()
	return nil
}

// Delete writes a tombstone for key.
func (e *Engine) Delete(key LedgerKey) error {
	e.logger.Debug("tombstone", logging.Account(fmt.Sprintf("%x", key.Account)), logging.Sequence(key.Sequence))
	return e.Put(e.policy.TombstoneFrom(key))
}

// Get retrieves a ledger entry by key, checking the cache, both
// memtables, and on-disk SSTables from newest to oldest in that order.
func (e *Engine) Get(key LedgerKey) (LedgerEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cacheKey := cacheKeyFor(key)
	if raw, ok := e.cache.Get(cacheKey); ok {
		e.metrics.RecordCacheResult(true)
		entry, ok := DecodeEntry(&Entry{Key: EncodeKey(key), Value: raw})
		if ok {
			return entry, true
		}
	}
	e.metrics.RecordCacheResult(false)

	active := e.buffers[e.activeIdx]
	if entry, ok := active.Get(key); ok {
		e.metrics.RecordGet(active.Label(), true)
		return e.resolveLive(cacheKey, entry)
	}

	standby := e.buffers[1-e.activeIdx]
	if entry, ok := standby.Get(key); ok {
		e.metrics.RecordGet(standby.Label(), true)
		return e.resolveLive(cacheKey, entry)
	}
	e.metrics.RecordGet(active.Label(), false)

	encodedKey := EncodeKey(key)
	for level := 0; level < len(e.levels); level++ {
		for i := len(e.levels[level]) - 1; i >= 0; i-- {
			sst := e.levels[level][i]
			raw, ok := sst.Get(encodedKey)
			if !ok {
				if sst.bloom != nil && !sst.bloom.MayContain(encodedKey) {
					e.metrics.RecordBloomNegative()
				}
				continue
			}
			entry, ok := DecodeEntry(raw)
			if !ok {
				continue
			}
			e.cache.Put(cacheKey, raw.Value)
			return entry, true
		}
	}

	return LedgerEntry{}, false
}

func (e *Engine) resolveLive(cacheKey string, entry LedgerEntry) (LedgerEntry, bool) {
	if entry.Tombstone {
		return LedgerEntry{}, false
	}
	e.cache.Put(cacheKey, EncodeEntry(entry).Value)
	return entry, true
}

// rotateLocked swaps the active and standby buffers, freezes the former
// active buffer and hands it to an asynchronous flush. Callers must hold
// e.mu.
func (e *Engine) rotateLocked() {
	for e.flushing {
		e.cond.Wait()
	}

	old := e.buffers[e.activeIdx]
	newIdx := 1 - e.activeIdx
	standby := e.buffers[newIdx]
	standby.Thaw()
	e.metrics.RecordThaw()
	e.activeIdx = newIdx

	e.nextSnapshot++
	old.Freeze(e.nextSnapshot)
	e.metrics.RecordFreeze()

	if old.Len() == 0 {
		old.MarkFlushed()
		return
	}

	e.flushing = true
	e.wg.Add(1)
	go e.flushBuffer(old)
}

// triggerFlush requests the flush worker rotate the active buffer on its
// next cycle even if it has not yet reached capacity.
func (e *Engine) triggerFlush() {
	select {
	case e.flushChan <- struct{}{}:
	default:
	}
}

func (e *Engine) triggerCompaction() {
	select {
	case e.compactionChan <- struct{}{}:
	default:
	}
}

func (e *Engine) flushWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.flushChan:
			e.flushIfNotEmpty()
		case <-ticker.C:
			e.flushIfNotEmpty()
		case <-e.stopChan:
			return
		}
	}
}

// recoverBackgroundPanic recovers a panic raised while rotating or
// flushing memtable buffers or running a compaction cycle. TableMemory
// contract violations are typed panics by design (errors.go's violate),
// and per the engine's panic discipline they're recovered only here, at
// the background workers' goroutine boundaries, so a bad Put or a
// corrupt on-disk SSTable doesn't take the whole process down during a
// long fuzzing run or benchmark. A panic can interrupt a rotation before
// it clears e.flushing, so the recovery takes the lock itself to release
// any goroutine waiting on that gate in rotateLocked or Close.
func (e *Engine) recoverBackgroundPanic(op string) {
	r := recover()
	if r == nil {
		return
	}

	e.logger.Error("recovered panic in background worker", logging.Operation(op), logging.Any("panic", fmt.Sprintf("%v", r)))

	e.mu.Lock()
	e.flushing = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

// flushIfNotEmpty rotates the active buffer if it has anything to flush.
// Guards flushWorker's call chain: rotateLocked's Freeze/Thaw/MarkFlushed
// calls panic on a TableMemory contract violation, and recovering here
// keeps flushWorker's loop running instead of dying on the first bad
// rotation.
func (e *Engine) flushIfNotEmpty() {
	defer e.recoverBackgroundPanic("flush")

	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.buffers[e.activeIdx]
	if active.Len() == 0 || e.flushing {
		return
	}
	e.rotateLocked()
}

// flushBuffer serializes buf's live records to a new L0 SSTable. buf must
// be Immutable and non-empty.
func (e *Engine) flushBuffer(buf *TableMemory[LedgerKey, LedgerEntry]) {
	defer e.wg.Done()
	defer e.recoverBackgroundPanic("flush")

	start := time.Now()
	timer := logging.StartTimer(e.logger, "memtable flush", logging.Operation("flush"))

	entries := make([]*Entry, 0, buf.Len())
	bytesWritten := 0
	records := buf.ValuesUsed()
	for i, record := range records {
		// records is stably sorted by key, so of several records sharing a
		// key the last is the latest write; the earlier ones are skipped.
		if i+1 < len(records) && e.policy.Compare(e.policy.KeyOf(record), e.policy.KeyOf(records[i+1])) == 0 {
			continue
		}
		entry := EncodeEntry(record)
		entries = append(entries, entry)
		bytesWritten += len(entry.Key) + len(entry.Value)
	}

	sstPath := SSTablePath(e.dataDir, 0, int(time.Now().UnixNano()))
	sst, err := NewSSTable(sstPath, entries)
	if err != nil {
		e.logger.Error("flush failed", logging.Error(err), logging.Path(sstPath))
		e.metrics.RecordFlush("error", time.Since(start), 0)

		e.mu.Lock()
		e.flushing = false
		e.cond.Broadcast()
		e.mu.Unlock()
		return
	}

	e.markBufferFlushed(buf, sst)

	e.metrics.RecordFlush("success", time.Since(start), bytesWritten)
	timer.End()

	e.triggerCompaction()
}

// markBufferFlushed records sst as the new L0 table and releases buf back
// to the standby slot. Holding mu with a deferred unlock (rather than the
// explicit lock/unlock flushBuffer used to do inline) matters here: if
// buf.MarkFlushed panics on a contract violation, the deferred unlock
// still runs before flushBuffer's own recover fires, so the recovery
// handler never tries to re-lock a mutex this goroutine already holds.
func (e *Engine) markBufferFlushed(buf *TableMemory[LedgerKey, LedgerEntry], sst *SSTable) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.levels) == 0 {
		e.levels = make([][]*SSTable, 1)
	}
	e.levels[0] = append(e.levels[0], sst)
	e.metrics.SetSSTableCount(0, len(e.levels[0]))

	buf.MarkFlushed()
	e.flushing = false
	e.cond.Broadcast()
}

func (e *Engine) compactionWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.compactionChan:
			e.compact()
		case <-ticker.C:
			e.compact()
		case <-e.stopChan:
			return
		}
	}
}

// compact selects and runs one compaction cycle. Recovering here keeps
// compactionWorker's loop alive across a bad merge instead of letting a
// panic escape the goroutine boundary.
func (e *Engine) compact() {
	defer e.recoverBackgroundPanic("compaction")

	e.mu.Lock()
	plan := e.compactionStrategy.SelectCompaction(e.levels)
	e.mu.Unlock()

	if plan == nil {
		return
	}

	start := time.Now()
	newSSTables, err := e.compactor.Compact(plan)
	if err != nil {
		e.logger.Error("compaction failed", logging.Error(err))
		e.metrics.RecordCompaction("error", time.Since(start))
		return
	}

	e.mu.Lock()
	newLevels := make([][]*SSTable, len(e.levels))
	for i := range e.levels {
		if i == plan.Level {
			// Only the compacted inputs leave this level; tables a flush
			// added while the compaction ran are kept.
			newLevels[i] = make([]*SSTable, 0)
			for _, sst := range e.levels[i] {
				compacted := false
				for _, in := range plan.SSTables {
					if in == sst {
						compacted = true
						break
					}
				}
				if !compacted {
					newLevels[i] = append(newLevels[i], sst)
				}
			}
		} else {
			newLevels[i] = e.levels[i]
		}
	}
	if plan.OutputLevel >= len(newLevels) {
		for i := len(newLevels); i <= plan.OutputLevel; i++ {
			newLevels = append(newLevels, make([]*SSTable, 0))
		}
	}
	newLevels[plan.OutputLevel] = append(newLevels[plan.OutputLevel], newSSTables...)
	e.levels = newLevels
	for level, ssts := range e.levels {
		e.metrics.SetSSTableCount(level, len(ssts))
	}
	e.mu.Unlock()

	e.compactor.CleanupOldSSTables(plan.SSTables)
	e.metrics.RecordCompaction("success", time.Since(start))
}

// Close stops background workers, flushes any pending writes and closes
// open SSTable handles. The two memtable buffers are returned to the
// allocator.
func (e *Engine) Close() error {
	close(e.stopChan)
	e.wg.Wait()

	e.mu.Lock()
	active := e.buffers[e.activeIdx]
	if active.Len() > 0 && !e.flushing {
		e.rotateLocked()
	}
	for e.flushing {
		e.cond.Wait()
	}

	for _, level := range e.levels {
		for _, sst := range level {
			sst.Close()
		}
	}
	e.mu.Unlock()

	// The final flush's goroutine has already cleared e.flushing by the
	// time the wait above returns, but wg.Wait lets its tail (metrics,
	// logging) finish before the buffers it read are destroyed.
	e.wg.Wait()

	e.buffers[0].Destroy()
	e.buffers[1].Destroy()

	return nil
}
