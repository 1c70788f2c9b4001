package rules

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Stats holds per-rule match counters. Counters are the only rule state
// mutated under reader-shared access; they use relaxed atomics and are
// preserved across Modify calls and snapshot republishes.
type Stats struct {
	matches   atomic.Uint64
	lastMatch atomic.Int64 // seconds since epoch
}

// Record notes one match at the given timestamp.
func (s *Stats) Record(ts int64) {
	s.matches.Add(1)
	s.lastMatch.Store(ts)
}

// Count returns the match count.
func (s *Stats) Count() uint64 { return s.matches.Load() }

// LastMatch returns the last match timestamp in seconds since epoch,
// or 0 if the rule never matched since the last reset.
func (s *Stats) LastMatch() int64 { return s.lastMatch.Load() }

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.matches.Store(0)
	s.lastMatch.Store(0)
}

// StoredRule is a rule as held by the store: the immutable rule value
// plus its shared statistics block.
type StoredRule struct {
	Rule
	Stats *Stats
}

// Snapshot is an immutable view of the rule set: the ID-keyed map and
// the priority-ordered slice are consistent with each other and never
// mutated after publication. Only the Stats blocks inside change, via
// atomics.
type Snapshot struct {
	Rules      map[uint32]*StoredRule
	ByPriority []*StoredRule
}

// Get returns the stored rule for an ID, or nil.
func (s *Snapshot) Get(id uint32) *StoredRule {
	return s.Rules[id]
}

// Store is the authoritative rule registry. Membership mutations are
// serialized internally; when the store backs a classifier engine the
// engine's writer claim additionally serializes them with index
// updates.
type Store struct {
	mu               sync.Mutex
	entries          map[uint32]*StoredRule
	snap             atomic.Pointer[Snapshot]
	rejectDuplicates bool
	logger           *slog.Logger
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// RejectDuplicates enables conflict detection: an add or modify
	// whose (filter, priority) pair exactly duplicates another rule's
	// is rejected. Off by default.
	RejectDuplicates bool
	Logger           *slog.Logger
}

// NewStore creates an empty rule store.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		entries:          make(map[uint32]*StoredRule),
		rejectDuplicates: opts.RejectDuplicates,
		logger:           logger,
	}
	s.snap.Store(&Snapshot{Rules: map[uint32]*StoredRule{}})
	return s
}

// Add inserts a new rule. It fails with KindDuplicateID if the ID is
// taken, KindInvalidRule on a malformed filter, and KindConflict under
// the duplicate-rejection policy.
func (s *Store) Add(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[r.ID]; ok {
		return errDuplicateID(r.ID)
	}
	if err := s.detectConflict(r); err != nil {
		return err
	}
	s.entries[r.ID] = &StoredRule{Rule: r, Stats: &Stats{}}
	s.publish()
	s.logger.Debug("rule added", "rule_id", r.ID, "priority", r.Priority)
	return nil
}

// Delete removes a rule by ID. Its statistics are discarded; the ID
// may be reused afterwards.
func (s *Store) Delete(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return errNotFound(id)
	}
	delete(s.entries, id)
	s.publish()
	s.logger.Debug("rule deleted", "rule_id", id)
	return nil
}

// Modify replaces a rule's filter, actions, priority, and enabled flag.
// The ID inside r is ignored; the rule keeps the ID it was stored
// under, and its statistics carry over.
func (s *Store) Modify(id uint32, r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[id]
	if !ok {
		return errNotFound(id)
	}
	r.ID = id
	if err := s.detectConflict(r); err != nil {
		return err
	}
	s.entries[id] = &StoredRule{Rule: r, Stats: old.Stats}
	s.publish()
	s.logger.Debug("rule modified", "rule_id", id, "priority", r.Priority)
	return nil
}

// Get returns a copy of the rule value for an ID.
func (s *Store) Get(id uint32) (Rule, bool) {
	e := s.snap.Load().Get(id)
	if e == nil {
		return Rule{}, false
	}
	return e.Rule, true
}

// Len returns the number of stored rules.
func (s *Store) Len() int {
	return len(s.snap.Load().Rules)
}

// SnapshotByPriority returns the current immutable snapshot. The
// returned value stays consistent for as long as the caller holds it,
// regardless of concurrent mutations.
func (s *Store) SnapshotByPriority() *Snapshot {
	return s.snap.Load()
}

// IncrementMatch records a match against a rule. Missing IDs are
// ignored; a rule deleted between snapshot and update simply loses the
// count.
func (s *Store) IncrementMatch(id uint32, ts int64) {
	if e := s.snap.Load().Get(id); e != nil {
		e.Stats.Record(ts)
	}
}

// MatchCount returns a rule's match count, or 0 for a missing ID.
func (s *Store) MatchCount(id uint32) uint64 {
	e := s.snap.Load().Get(id)
	if e == nil {
		return 0
	}
	return e.Stats.Count()
}

// StatsSnapshot returns the match count of every stored rule.
func (s *Store) StatsSnapshot() map[uint32]uint64 {
	snap := s.snap.Load()
	out := make(map[uint32]uint64, len(snap.Rules))
	for id, e := range snap.Rules {
		out[id] = e.Stats.Count()
	}
	return out
}

// ResetStats zeroes one rule's counters. Missing IDs are ignored,
// mirroring the statistics query behavior.
func (s *Store) ResetStats(id uint32) {
	if e := s.snap.Load().Get(id); e != nil {
		e.Stats.Reset()
	}
}

// ResetAllStats zeroes every rule's counters.
func (s *Store) ResetAllStats() {
	for _, e := range s.snap.Load().Rules {
		e.Stats.Reset()
	}
}

// detectConflict applies the configured conflict policy. The permissive
// default accepts everything. Caller holds s.mu.
func (s *Store) detectConflict(r Rule) error {
	if !s.rejectDuplicates {
		return nil
	}
	for id, e := range s.entries {
		if id == r.ID {
			continue
		}
		if e.Priority == r.Priority && e.Filter.Equal(&r.Filter) {
			return errConflict(r.ID, id)
		}
	}
	return nil
}

// publish rebuilds and installs the snapshot. Caller holds s.mu.
func (s *Store) publish() {
	rulesByID := make(map[uint32]*StoredRule, len(s.entries))
	byPriority := make([]*StoredRule, 0, len(s.entries))
	for id, e := range s.entries {
		rulesByID[id] = e
		byPriority = append(byPriority, e)
	}
	sort.Slice(byPriority, func(i, j int) bool {
		if byPriority[i].Priority != byPriority[j].Priority {
			return byPriority[i].Priority > byPriority[j].Priority
		}
		return byPriority[i].ID < byPriority[j].ID
	})
	s.snap.Store(&Snapshot{Rules: rulesByID, ByPriority: byPriority})
}
