package classifier

import (
	"math/rand"
	"testing"

	"github.com/psaab/pktclass/pkg/rules"
)

// linearClassify is the reference implementation: scan the rule set in
// (-priority, id) order and return the first enabled full match.
func linearClassify(ruleSet []rules.Rule, h rules.PacketHeader) rules.ClassificationResult {
	best := -1
	for i, r := range ruleSet {
		if !r.Enabled || !r.Filter.Matches(h) {
			continue
		}
		if best == -1 ||
			r.Priority > ruleSet[best].Priority ||
			(r.Priority == ruleSet[best].Priority && r.ID < ruleSet[best].ID) {
			best = i
		}
	}
	if best == -1 {
		return rules.ClassificationResult{}
	}
	return rules.ClassificationResult{
		Matched: true,
		RuleID:  ruleSet[best].ID,
		Actions: ruleSet[best].Actions,
	}
}

func randomRule(rng *rand.Rand, id uint32) rules.Rule {
	r := rules.Rule{
		ID:       id,
		Priority: rng.Intn(100),
		Enabled:  rng.Intn(8) != 0,
		Actions:  rules.ActionList{Primary: rules.ActionType(rng.Intn(4))},
	}
	if rng.Intn(2) == 0 {
		plen := uint8(rng.Intn(33))
		addr := rng.Uint32()
		if plen == 0 {
			addr = 0
		} else {
			addr &= ^uint32(0) << (32 - plen)
		}
		r.Filter.SrcPrefix = &rules.Prefix{Addr: addr, Len: plen}
	}
	if rng.Intn(2) == 0 {
		plen := uint8(rng.Intn(33))
		addr := rng.Uint32()
		if plen == 0 {
			addr = 0
		} else {
			addr &= ^uint32(0) << (32 - plen)
		}
		r.Filter.DstPrefix = &rules.Prefix{Addr: addr, Len: plen}
	}
	if rng.Intn(2) == 0 {
		lo := uint16(rng.Intn(65536))
		hi := lo + uint16(rng.Intn(int(65536-uint32(lo))))
		r.Filter.SrcPorts = rules.PortRange{Lo: lo, Hi: hi}
	}
	if rng.Intn(2) == 0 {
		lo := uint16(rng.Intn(65536))
		hi := lo + uint16(rng.Intn(int(65536-uint32(lo))))
		r.Filter.DstPorts = rules.PortRange{Lo: lo, Hi: hi}
	}
	if rng.Intn(3) == 0 {
		r.Filter.Protocol = uint8(rng.Intn(3)*11 + 6)
	}
	return r
}

// randomHeader biases addresses toward stored prefixes so matches
// actually happen.
func randomHeader(rng *rand.Rand, ruleSet []rules.Rule) rules.PacketHeader {
	h := rules.PacketHeader{
		SrcIP:    rng.Uint32(),
		DstIP:    rng.Uint32(),
		SrcPort:  uint16(rng.Intn(65536)),
		DstPort:  uint16(rng.Intn(65536)),
		Protocol: uint8(rng.Intn(3)*11 + 6),
	}
	if len(ruleSet) > 0 && rng.Intn(2) == 0 {
		r := ruleSet[rng.Intn(len(ruleSet))]
		if r.Filter.SrcPrefix != nil {
			h.SrcIP = r.Filter.SrcPrefix.Addr | (rng.Uint32() &^ maskFor(r.Filter.SrcPrefix.Len))
		}
		if r.Filter.DstPrefix != nil {
			h.DstIP = r.Filter.DstPrefix.Addr | (rng.Uint32() &^ maskFor(r.Filter.DstPrefix.Len))
		}
		if !r.Filter.SrcPorts.IsWildcard() {
			h.SrcPort = r.Filter.SrcPorts.Lo
		}
		if !r.Filter.DstPorts.IsWildcard() {
			h.DstPort = r.Filter.DstPorts.Hi
		}
		if r.Filter.Protocol != 0 {
			h.Protocol = r.Filter.Protocol
		}
	}
	return h
}

func maskFor(plen uint8) uint32 {
	if plen == 0 {
		return 0
	}
	return ^uint32(0) << (32 - plen)
}

// TestClassifyMatchesLinearScan drives random add/modify/delete
// sequences and checks the engine against the reference scan after
// every mutation.
func TestClassifyMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e := newTestEngine(t)
	live := map[uint32]rules.Rule{}
	nextID := uint32(1)

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(10); {
		case op < 6 || len(live) == 0: // add
			r := randomRule(rng, nextID)
			nextID++
			if err := e.Add(r); err != nil {
				t.Fatalf("step %d: Add: %v", step, err)
			}
			live[r.ID] = r
		case op < 8: // modify
			var victim uint32
			for id := range live {
				victim = id
				break
			}
			r := randomRule(rng, victim)
			if err := e.Modify(victim, r); err != nil {
				t.Fatalf("step %d: Modify(%d): %v", step, victim, err)
			}
			live[victim] = r
		default: // delete
			var victim uint32
			for id := range live {
				victim = id
				break
			}
			if err := e.Delete(victim); err != nil {
				t.Fatalf("step %d: Delete(%d): %v", step, victim, err)
			}
			delete(live, victim)
		}

		ruleSet := make([]rules.Rule, 0, len(live))
		for _, r := range live {
			ruleSet = append(ruleSet, r)
		}

		for probe := 0; probe < 10; probe++ {
			h := randomHeader(rng, ruleSet)
			got := e.Classify(h)
			want := linearClassify(ruleSet, h)
			if got.Matched != want.Matched || got.RuleID != want.RuleID {
				t.Fatalf("step %d: classify(%v) = %+v, reference %+v",
					step, h, got, want)
			}
		}
	}
}

// TestIndexConsistency verifies that at a quiescent point the field
// indexes hold exactly the (prefix, id) and (range, id) pairs of the
// enabled rules.
func TestIndexConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	e := newTestEngine(t)
	live := map[uint32]rules.Rule{}

	for id := uint32(1); id <= 60; id++ {
		r := randomRule(rng, id)
		e.mustAdd(t, r)
		live[id] = r
	}
	for id := uint32(1); id <= 60; id += 3 {
		if err := e.Delete(id); err != nil {
			t.Fatal(err)
		}
		delete(live, id)
	}

	snap := e.snap.Load()
	var wantSrcTrie, wantDstTrie, wantSrcPorts, wantDstPorts int
	for id, r := range live {
		f := r.Filter
		if !r.Enabled {
			if snap.indexed(id) {
				t.Errorf("disabled rule %d present in indexes", id)
			}
			continue
		}
		if f.SrcPrefix != nil {
			wantSrcTrie++
			if !snap.srcTrie.Contains(f.SrcPrefix.Addr, f.SrcPrefix.Len, id) {
				t.Errorf("rule %d missing from src trie", id)
			}
		} else if _, ok := snap.srcWild[id]; !ok {
			t.Errorf("rule %d missing from src wildcard set", id)
		}
		if f.DstPrefix != nil {
			wantDstTrie++
			if !snap.dstTrie.Contains(f.DstPrefix.Addr, f.DstPrefix.Len, id) {
				t.Errorf("rule %d missing from dst trie", id)
			}
		}
		if !f.SrcPorts.IsWildcard() {
			wantSrcPorts++
			if !snap.srcPorts.Contains(int(f.SrcPorts.Lo), int(f.SrcPorts.Hi), id) {
				t.Errorf("rule %d missing from src port tree", id)
			}
		}
		if !f.DstPorts.IsWildcard() {
			wantDstPorts++
			if !snap.dstPorts.Contains(int(f.DstPorts.Lo), int(f.DstPorts.Hi), id) {
				t.Errorf("rule %d missing from dst port tree", id)
			}
		}
	}

	if snap.srcTrie.Len() != wantSrcTrie {
		t.Errorf("src trie has %d pairs, want %d", snap.srcTrie.Len(), wantSrcTrie)
	}
	if snap.dstTrie.Len() != wantDstTrie {
		t.Errorf("dst trie has %d pairs, want %d", snap.dstTrie.Len(), wantDstTrie)
	}
	if snap.srcPorts.Len() != wantSrcPorts {
		t.Errorf("src port tree has %d entries, want %d", snap.srcPorts.Len(), wantSrcPorts)
	}
	if snap.dstPorts.Len() != wantDstPorts {
		t.Errorf("dst port tree has %d entries, want %d", snap.dstPorts.Len(), wantDstPorts)
	}
}
