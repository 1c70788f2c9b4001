// Package classifier implements the multi-field packet classification
// engine: a rule store with derived field indexes published as
// immutable snapshots, so classification runs lock-free against a rule
// set mutating under writers.
package classifier

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psaab/pktclass/pkg/bloom"
	"github.com/psaab/pktclass/pkg/logging"
	"github.com/psaab/pktclass/pkg/mempool"
	"github.com/psaab/pktclass/pkg/rules"
)

// Options configures an Engine.
type Options struct {
	// EnableBloomPreFilter turns on the advisory rule-fingerprint
	// pre-filter. A negative probe never skips the authoritative
	// match; it is surfaced only as a hint counter.
	EnableBloomPreFilter bool
	// BloomExpectedItems and BloomFPRate size the pre-filter. Zero
	// values default to 10000 items at 1% when the filter is enabled.
	BloomExpectedItems uint
	BloomFPRate        float64

	// MemoryPoolInitialCapacity sizes the scratch object pool used by
	// classification. Zero picks a small default.
	MemoryPoolInitialCapacity uint
	// NUMANode is a placement hint recorded on the pool; -1 or 0 means
	// unspecified.
	NUMANode int

	// RejectDuplicates enables the optional conflict policy: rules
	// duplicating another rule's exact (filter, priority) pair are
	// rejected. The default is permissive.
	RejectDuplicates bool

	// Logger receives rule lifecycle and match events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Engine is the classification engine. Classify may be called from any
// number of goroutines; Add, Delete, and Modify serialize on an
// internal writer claim and publish a new snapshot per write.
type Engine struct {
	mu   sync.Mutex // writer claim: serializes mutations and publishes
	snap atomic.Pointer[snapshot]

	store   *rules.Store
	bloom   *bloom.Filter // nil when disabled
	scratch *mempool.Pool[scratch]
	logger  *slog.Logger

	classifications atomic.Uint64
	matches         atomic.Uint64
	bloomNegatives  atomic.Uint64
	publishes       atomic.Uint64
}

// New creates an engine with no rules.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store: rules.NewStore(rules.StoreOptions{
			RejectDuplicates: opts.RejectDuplicates,
			Logger:           logger,
		}),
		logger: logger,
	}

	if opts.EnableBloomPreFilter {
		items := opts.BloomExpectedItems
		if items == 0 {
			items = 10000
		}
		rate := opts.BloomFPRate
		if rate <= 0 || rate >= 1 {
			rate = 0.01
		}
		e.bloom = bloom.New(items, rate)
	}

	poolCap := int(opts.MemoryPoolInitialCapacity)
	numa := opts.NUMANode
	if numa == 0 {
		numa = -1
	}
	e.scratch = mempool.New[scratch](mempool.Options{
		InitialCapacity: poolCap,
		NUMANode:        numa,
	})

	e.snap.Store(emptySnapshot(e.store.SnapshotByPriority()))
	logger.Info("classification engine initialized",
		"bloom_pre_filter", e.bloom != nil,
		"reject_duplicates", opts.RejectDuplicates)
	return e
}

// Add inserts a new rule and publishes the updated snapshot.
func (e *Engine) Add(r rules.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Add(r); err != nil {
		return err
	}
	work := e.snap.Load().clone()
	work.rules = e.store.SnapshotByPriority()
	if err := work.indexAdd(r); err != nil {
		// The working bundle is discarded; revert the store before the
		// claim is released so no reader ever sees the half-applied
		// write.
		e.store.Delete(r.ID)
		e.logger.Error("index update failed, rule add rolled back",
			"rule_id", r.ID, "err", err)
		return rules.IndexUpdateError(r.ID, err)
	}
	if e.bloom != nil && r.Enabled {
		e.bloom.Insert(r.Filter.Fingerprint())
	}
	e.publish(work)
	e.logger.Info("rule added", "rule_id", r.ID, "priority", r.Priority,
		"filter", r.Filter.String())
	return nil
}

// Delete removes a rule and publishes the updated snapshot.
func (e *Engine) Delete(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.store.Get(id)
	if !ok {
		return e.store.Delete(id) // yields the structured not-found error
	}
	if err := e.store.Delete(id); err != nil {
		return err
	}
	work := e.snap.Load().clone()
	work.rules = e.store.SnapshotByPriority()
	work.indexRemove(old)
	e.publish(work)
	e.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// Modify replaces a rule's filter, actions, priority, and enabled
// flag under a single writer claim: readers observe either the old or
// the new rule, never a partial replacement. The ID inside r is
// ignored.
func (e *Engine) Modify(id uint32, r rules.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.store.Get(id)
	if !ok {
		return e.store.Modify(id, r)
	}
	if err := e.store.Modify(id, r); err != nil {
		return err
	}
	r.ID = id

	work := e.snap.Load().clone()
	work.rules = e.store.SnapshotByPriority()
	work.indexRemove(old)
	if err := work.indexAdd(r); err != nil {
		e.store.Modify(id, old)
		e.logger.Error("index update failed, rule modify rolled back",
			"rule_id", id, "err", err)
		return rules.IndexUpdateError(id, err)
	}
	if e.bloom != nil && r.Enabled {
		// The old fingerprint cannot be removed from the filter; the
		// stale positive is accepted as advisory noise.
		e.bloom.Insert(r.Filter.Fingerprint())
	}
	e.publish(work)
	e.logger.Info("rule modified", "rule_id", id, "priority", r.Priority)
	return nil
}

// publish installs the working bundle. Caller holds e.mu.
func (e *Engine) publish(work *snapshot) {
	e.snap.Store(work)
	e.publishes.Add(1)
}

// AddRule is the boolean compatibility wrapper over Add.
func (e *Engine) AddRule(r rules.Rule) bool { return e.Add(r) == nil }

// DeleteRule is the boolean compatibility wrapper over Delete.
func (e *Engine) DeleteRule(id uint32) bool { return e.Delete(id) == nil }

// ModifyRule is the boolean compatibility wrapper over Modify.
func (e *Engine) ModifyRule(id uint32, r rules.Rule) bool { return e.Modify(id, r) == nil }

// Classify selects the highest-priority enabled rule matching the
// header. It never blocks on writers: one atomic snapshot load, pure
// reads, then a relaxed counter update on the matched rule.
func (e *Engine) Classify(h rules.PacketHeader) rules.ClassificationResult {
	return e.classifyWith(e.snap.Load(), h)
}

// ClassifyBatch classifies every header against one snapshot acquired
// for the whole batch.
func (e *Engine) ClassifyBatch(headers []rules.PacketHeader) []rules.ClassificationResult {
	snap := e.snap.Load()
	out := make([]rules.ClassificationResult, len(headers))
	for i, h := range headers {
		out[i] = e.classifyWith(snap, h)
	}
	return out
}

// Rule returns a copy of a stored rule.
func (e *Engine) Rule(id uint32) (rules.Rule, bool) {
	sr := e.snap.Load().rules.Get(id)
	if sr == nil {
		return rules.Rule{}, false
	}
	return sr.Rule, true
}

// Rules returns the rule set in priority order.
func (e *Engine) Rules() []rules.Rule {
	snap := e.snap.Load()
	out := make([]rules.Rule, len(snap.rules.ByPriority))
	for i, sr := range snap.rules.ByPriority {
		out[i] = sr.Rule
	}
	return out
}

// Len returns the number of stored rules.
func (e *Engine) Len() int { return len(e.snap.Load().rules.Rules) }

// Statistics returns every rule's match count.
func (e *Engine) Statistics() map[uint32]uint64 {
	snap := e.snap.Load()
	out := make(map[uint32]uint64, len(snap.rules.Rules))
	for id, sr := range snap.rules.Rules {
		out[id] = sr.Stats.Count()
	}
	return out
}

// RuleStatistics returns one rule's match count; missing IDs yield 0.
func (e *Engine) RuleStatistics(id uint32) uint64 {
	sr := e.snap.Load().rules.Get(id)
	if sr == nil {
		return 0
	}
	return sr.Stats.Count()
}

// ResetStatistics zeroes every rule's counters.
func (e *Engine) ResetStatistics() {
	for _, sr := range e.snap.Load().rules.Rules {
		sr.Stats.Reset()
	}
	e.logger.Info("rule statistics reset")
}

// ResetRuleStatistics zeroes one rule's counters; missing IDs are
// ignored.
func (e *Engine) ResetRuleStatistics(id uint32) {
	if sr := e.snap.Load().rules.Get(id); sr != nil {
		sr.Stats.Reset()
	}
}

// scratch is the reusable per-classification working state. The maps
// keep their capacity across uses; reset happens at acquisition.
type scratch struct {
	cand  map[uint32]struct{}
	field map[uint32]struct{}
}

func (e *Engine) classifyWith(snap *snapshot, h rules.PacketHeader) rules.ClassificationResult {
	e.classifications.Add(1)

	if e.bloom != nil && !e.bloom.PossiblyContains(h.Fingerprint()) {
		// Advisory only: the stored fingerprint space is rule filters,
		// which does not cover packet digests, so a miss must not
		// bypass the authoritative match.
		e.bloomNegatives.Add(1)
	}

	sc := e.scratch.Get()
	if sc == nil {
		sc = &scratch{}
	} else {
		defer e.scratch.Put(sc)
	}
	if sc.cand == nil {
		sc.cand = make(map[uint32]struct{})
		sc.field = make(map[uint32]struct{})
	}
	clear(sc.cand)

	// Seed candidates from the source-IP index, then intersect with
	// each remaining field in turn. Wildcard members always count.
	snap.srcTrie.VisitCovering(h.SrcIP, func(_ uint8, ids map[uint32]struct{}) {
		for id := range ids {
			sc.cand[id] = struct{}{}
		}
	})
	for id := range snap.srcWild {
		sc.cand[id] = struct{}{}
	}

	if len(sc.cand) > 0 {
		clear(sc.field)
		snap.dstTrie.VisitCovering(h.DstIP, func(_ uint8, ids map[uint32]struct{}) {
			for id := range ids {
				sc.field[id] = struct{}{}
			}
		})
		intersect(sc.cand, sc.field, snap.dstWild)
	}

	if len(sc.cand) > 0 {
		clear(sc.field)
		snap.srcPorts.VisitPoint(int(h.SrcPort), func(_, _ int, id uint32) {
			sc.field[id] = struct{}{}
		})
		intersect(sc.cand, sc.field, snap.srcPortWild)
	}

	if len(sc.cand) > 0 {
		clear(sc.field)
		snap.dstPorts.VisitPoint(int(h.DstPort), func(_, _ int, id uint32) {
			sc.field[id] = struct{}{}
		})
		intersect(sc.cand, sc.field, snap.dstPortWild)
	}

	if len(sc.cand) > 0 {
		// Walk survivors in the snapshot's priority order; the first
		// fully matching enabled rule wins.
		for _, sr := range snap.rules.ByPriority {
			if _, ok := sc.cand[sr.ID]; !ok {
				continue
			}
			if !sr.Enabled || !sr.Filter.Matches(h) {
				continue
			}
			sr.Stats.Record(time.Now().Unix())
			e.matches.Add(1)
			if e.logger.Enabled(context.Background(), logging.LevelTrace) {
				e.logger.Log(context.Background(), logging.LevelTrace, "packet matched",
					"rule_id", sr.ID, "header", h.String())
			}
			return rules.ClassificationResult{
				Matched: true,
				RuleID:  sr.ID,
				Actions: sr.Actions,
			}
		}
	}

	return rules.ClassificationResult{}
}

// intersect removes from cand every ID in neither field nor wild.
func intersect(cand, field, wild map[uint32]struct{}) {
	for id := range cand {
		if _, ok := field[id]; ok {
			continue
		}
		if _, ok := wild[id]; ok {
			continue
		}
		delete(cand, id)
	}
}
