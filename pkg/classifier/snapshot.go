package classifier

import (
	"github.com/psaab/pktclass/pkg/interval"
	"github.com/psaab/pktclass/pkg/iptrie"
	"github.com/psaab/pktclass/pkg/rules"
)

// snapshot is the immutable bundle one classification reads: the rule
// snapshot plus every derived field index. Writers build the next
// bundle from a clone and install it with a single atomic store;
// a published snapshot is never mutated again.
//
// Rules without a constraint on a field live in that field's wildcard
// set, so every field probe yields a complete candidate set.
type snapshot struct {
	rules *rules.Snapshot

	srcTrie  *iptrie.Trie
	dstTrie  *iptrie.Trie
	srcPorts *interval.Tree
	dstPorts *interval.Tree

	srcWild     map[uint32]struct{}
	dstWild     map[uint32]struct{}
	srcPortWild map[uint32]struct{}
	dstPortWild map[uint32]struct{}
}

func emptySnapshot(rs *rules.Snapshot) *snapshot {
	return &snapshot{
		rules:       rs,
		srcTrie:     iptrie.New(),
		dstTrie:     iptrie.New(),
		srcPorts:    interval.New(),
		dstPorts:    interval.New(),
		srcWild:     map[uint32]struct{}{},
		dstWild:     map[uint32]struct{}{},
		srcPortWild: map[uint32]struct{}{},
		dstPortWild: map[uint32]struct{}{},
	}
}

// clone deep-copies the index structures so the copy can be mutated
// while the original stays visible to readers. The rule snapshot is
// replaced by the caller after the store mutation.
func (s *snapshot) clone() *snapshot {
	return &snapshot{
		rules:       s.rules,
		srcTrie:     s.srcTrie.Clone(),
		dstTrie:     s.dstTrie.Clone(),
		srcPorts:    s.srcPorts.Clone(),
		dstPorts:    s.dstPorts.Clone(),
		srcWild:     cloneSet(s.srcWild),
		dstWild:     cloneSet(s.dstWild),
		srcPortWild: cloneSet(s.srcPortWild),
		dstPortWild: cloneSet(s.dstPortWild),
	}
}

func cloneSet(src map[uint32]struct{}) map[uint32]struct{} {
	dst := make(map[uint32]struct{}, len(src))
	for id := range src {
		dst[id] = struct{}{}
	}
	return dst
}

// indexAdd registers an enabled rule with every field index. Disabled
// rules are indexed nowhere. On error the snapshot is only partially
// updated and must be discarded by the caller. Called only on a private
// working clone while the caller holds the engine's writer claim.
func (s *snapshot) indexAdd(r rules.Rule) error {
	if !r.Enabled {
		return nil
	}
	f := &r.Filter

	if f.SrcPrefix != nil {
		if err := s.srcTrie.Insert(f.SrcPrefix.Addr, f.SrcPrefix.Len, r.ID); err != nil {
			return err
		}
	} else {
		s.srcWild[r.ID] = struct{}{}
	}

	if f.DstPrefix != nil {
		if err := s.dstTrie.Insert(f.DstPrefix.Addr, f.DstPrefix.Len, r.ID); err != nil {
			return err
		}
	} else {
		s.dstWild[r.ID] = struct{}{}
	}

	if !f.SrcPorts.IsWildcard() {
		if err := s.srcPorts.Insert(int(f.SrcPorts.Lo), int(f.SrcPorts.Hi), r.ID); err != nil {
			return err
		}
	} else {
		s.srcPortWild[r.ID] = struct{}{}
	}

	if !f.DstPorts.IsWildcard() {
		if err := s.dstPorts.Insert(int(f.DstPorts.Lo), int(f.DstPorts.Hi), r.ID); err != nil {
			return err
		}
	} else {
		s.dstPortWild[r.ID] = struct{}{}
	}
	return nil
}

// indexRemove erases a rule's presence from every field index. Removing
// a rule that was never indexed (a disabled rule) is a no-op. Called only
// on a private working clone while the caller holds the engine's writer
// claim.
func (s *snapshot) indexRemove(r rules.Rule) {
	f := &r.Filter

	if f.SrcPrefix != nil {
		s.srcTrie.Remove(f.SrcPrefix.Addr, f.SrcPrefix.Len, r.ID)
	} else {
		delete(s.srcWild, r.ID)
	}

	if f.DstPrefix != nil {
		s.dstTrie.Remove(f.DstPrefix.Addr, f.DstPrefix.Len, r.ID)
	} else {
		delete(s.dstWild, r.ID)
	}

	if !f.SrcPorts.IsWildcard() {
		s.srcPorts.Remove(int(f.SrcPorts.Lo), int(f.SrcPorts.Hi), r.ID)
	} else {
		delete(s.srcPortWild, r.ID)
	}

	if !f.DstPorts.IsWildcard() {
		s.dstPorts.Remove(int(f.DstPorts.Lo), int(f.DstPorts.Hi), r.ID)
	} else {
		delete(s.dstPortWild, r.ID)
	}
}

// indexed reports whether any field index still references the rule
// ID. Test hook for verifying delete leaves no trace.
func (s *snapshot) indexed(id uint32) bool {
	if _, ok := s.srcWild[id]; ok {
		return true
	}
	if _, ok := s.dstWild[id]; ok {
		return true
	}
	if _, ok := s.srcPortWild[id]; ok {
		return true
	}
	if _, ok := s.dstPortWild[id]; ok {
		return true
	}
	return s.srcTrie.ContainsID(id) || s.dstTrie.ContainsID(id) ||
		s.srcPorts.ContainsID(id) || s.dstPorts.ContainsID(id)
}
