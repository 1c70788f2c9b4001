package classifier

import (
	"sync"
	"testing"

	"github.com/psaab/pktclass/pkg/rules"
)

// TestConcurrentReadersAndWriters hammers Classify from many
// goroutines while writers churn part of the rule set. Every observed
// result must be internally consistent: a match is always one of the
// rules that could legitimately match the probe under some snapshot.
func TestConcurrentReadersAndWriters(t *testing.T) {
	e := newTestEngine(t)

	// A stable rule that always matches the probe, below the churned
	// rules in priority.
	e.mustAdd(t, rules.Rule{
		ID: 1000, Priority: 1, Enabled: true,
		Filter:  rules.Filter{SrcPrefix: rules.MustPrefix("10.0.0.0/8")},
		Actions: fwd(99),
	})

	probe := rules.PacketHeader{SrcIP: 0x0A010203, DstIP: 1, DstPort: 80, Protocol: 6}
	churned := rules.Rule{
		ID: 1, Priority: 100, Enabled: true,
		Filter:  rules.Filter{SrcPrefix: rules.MustPrefix("10.1.0.0/16")},
		Actions: fwd(5),
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writer: repeatedly add and delete the high-priority rule.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 0; i < 500; i++ {
			if err := e.Add(churned); err != nil {
				t.Errorf("Add: %v", err)
				return
			}
			if err := e.Delete(churned.ID); err != nil {
				t.Errorf("Delete: %v", err)
				return
			}
		}
	}()

	// Readers: every classification must land on one of the two rules,
	// never on nothing and never on a phantom.
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res := e.Classify(probe)
				if !res.Matched {
					t.Error("probe missed: the stable rule must always match")
					return
				}
				if res.RuleID != 1000 && res.RuleID != 1 {
					t.Errorf("matched phantom rule %d", res.RuleID)
					return
				}
			}
		}()
	}

	wg.Wait()

	// Quiesced: only the stable rule remains.
	res := e.Classify(probe)
	if !res.Matched || res.RuleID != 1000 {
		t.Fatalf("after churn: got %+v, want rule 1000", res)
	}
}

// TestConcurrentBatchAndStats runs batch classification against
// concurrent statistics reads and resets; every batch probe must still
// match while the counters are read and zeroed underneath it.
func TestConcurrentBatchAndStats(t *testing.T) {
	e := newTestEngine(t)
	e.mustAdd(t, rules.Rule{
		ID: 1, Priority: 10, Enabled: true,
		Filter:  rules.Filter{SrcPrefix: rules.MustPrefix("10.0.0.0/8")},
		Actions: fwd(1),
	})

	headers := make([]rules.PacketHeader, 64)
	for i := range headers {
		headers[i] = rules.PacketHeader{SrcIP: 0x0A000001 + uint32(i), DstIP: 1}
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for _, res := range e.ClassifyBatch(headers) {
					if !res.Matched {
						t.Error("batch probe missed")
						return
					}
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.Statistics()
			e.ResetStatistics()
		}
	}()
	wg.Wait()
}
