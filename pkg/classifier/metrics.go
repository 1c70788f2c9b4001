package classifier

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// engineCollector implements prometheus.Collector, reading engine
// counters and the current snapshot on each scrape.
type engineCollector struct {
	e *Engine

	rulesActive          *prometheus.Desc
	classificationsTotal *prometheus.Desc
	matchesTotal         *prometheus.Desc
	bloomNegativesTotal  *prometheus.Desc
	publishesTotal       *prometheus.Desc
	ruleMatchesTotal     *prometheus.Desc
	scratchPoolUsed      *prometheus.Desc
	scratchPoolCapacity  *prometheus.Desc
	bloomFPRate          *prometheus.Desc
}

// Collector returns a prometheus collector over the engine.
func (e *Engine) Collector() prometheus.Collector {
	return &engineCollector{
		e: e,

		rulesActive: prometheus.NewDesc(
			"pktclass_rules",
			"Current number of stored rules.",
			nil, nil,
		),
		classificationsTotal: prometheus.NewDesc(
			"pktclass_classifications_total",
			"Total classifications performed.",
			nil, nil,
		),
		matchesTotal: prometheus.NewDesc(
			"pktclass_matches_total",
			"Total classifications that matched a rule.",
			nil, nil,
		),
		bloomNegativesTotal: prometheus.NewDesc(
			"pktclass_bloom_negative_hints_total",
			"Total advisory negative hints from the Bloom pre-filter.",
			nil, nil,
		),
		publishesTotal: prometheus.NewDesc(
			"pktclass_snapshot_publishes_total",
			"Total snapshot publications by writers.",
			nil, nil,
		),
		ruleMatchesTotal: prometheus.NewDesc(
			"pktclass_rule_matches_total",
			"Total matches per rule.",
			[]string{"rule_id"}, nil,
		),
		scratchPoolUsed: prometheus.NewDesc(
			"pktclass_scratch_pool_used",
			"Scratch pool objects currently handed out.",
			nil, nil,
		),
		scratchPoolCapacity: prometheus.NewDesc(
			"pktclass_scratch_pool_capacity",
			"Scratch pool total object capacity.",
			nil, nil,
		),
		bloomFPRate: prometheus.NewDesc(
			"pktclass_bloom_estimated_fp_rate",
			"Estimated Bloom pre-filter false-positive probability.",
			nil, nil,
		),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rulesActive
	ch <- c.classificationsTotal
	ch <- c.matchesTotal
	ch <- c.bloomNegativesTotal
	ch <- c.publishesTotal
	ch <- c.ruleMatchesTotal
	ch <- c.scratchPoolUsed
	ch <- c.scratchPoolCapacity
	ch <- c.bloomFPRate
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	e := c.e
	snap := e.snap.Load()

	ch <- prometheus.MustNewConstMetric(c.rulesActive, prometheus.GaugeValue,
		float64(len(snap.rules.Rules)))
	ch <- prometheus.MustNewConstMetric(c.classificationsTotal, prometheus.CounterValue,
		float64(e.classifications.Load()))
	ch <- prometheus.MustNewConstMetric(c.matchesTotal, prometheus.CounterValue,
		float64(e.matches.Load()))
	ch <- prometheus.MustNewConstMetric(c.bloomNegativesTotal, prometheus.CounterValue,
		float64(e.bloomNegatives.Load()))
	ch <- prometheus.MustNewConstMetric(c.publishesTotal, prometheus.CounterValue,
		float64(e.publishes.Load()))

	for _, sr := range snap.rules.ByPriority {
		ch <- prometheus.MustNewConstMetric(c.ruleMatchesTotal, prometheus.CounterValue,
			float64(sr.Stats.Count()), strconv.FormatUint(uint64(sr.ID), 10))
	}

	ch <- prometheus.MustNewConstMetric(c.scratchPoolUsed, prometheus.GaugeValue,
		float64(e.scratch.Used()))
	ch <- prometheus.MustNewConstMetric(c.scratchPoolCapacity, prometheus.GaugeValue,
		float64(e.scratch.Capacity()))

	if e.bloom != nil {
		ch <- prometheus.MustNewConstMetric(c.bloomFPRate, prometheus.GaugeValue,
			e.bloom.EstimatedFPRate())
	}
}
