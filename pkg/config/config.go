// Package config loads the daemon's YAML configuration: engine options
// plus an initial rule set with textual CIDR prefixes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/psaab/pktclass/pkg/rules"
)

// Config is the top-level daemon configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
	Rules  []RuleConfig `yaml:"rules"`
}

// EngineConfig maps to classifier.Options.
type EngineConfig struct {
	EnableBloomPreFilter bool    `yaml:"enable_bloom_pre_filter"`
	BloomExpectedItems   uint    `yaml:"bloom_expected_items"`
	BloomFPRate          float64 `yaml:"bloom_fp_rate"`
	PoolInitialCapacity  uint    `yaml:"memory_pool_initial_capacity"`
	NUMANode             int     `yaml:"numa_node"`
	RejectDuplicates     bool    `yaml:"reject_duplicates"`
}

// LogConfig configures the log sink.
type LogConfig struct {
	Level    string `yaml:"level"` // trace, debug, info, warn, error
	File     string `yaml:"file"`  // empty = console only
	MaxSize  int64  `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files"`
}

// RuleConfig is one rule in textual form.
type RuleConfig struct {
	ID          uint32       `yaml:"id"`
	Priority    int          `yaml:"priority"`
	Enabled     *bool        `yaml:"enabled"` // default true
	SrcPrefix   string       `yaml:"src_prefix"`
	DstPrefix   string       `yaml:"dst_prefix"`
	SrcPortLow  uint16       `yaml:"src_port_low"`
	SrcPortHigh uint16       `yaml:"src_port_high"`
	DstPortLow  uint16       `yaml:"dst_port_low"`
	DstPortHigh uint16       `yaml:"dst_port_high"`
	Protocol    uint8        `yaml:"protocol"`
	Action      ActionConfig `yaml:"action"`
}

// ActionConfig is the rule action in textual form.
type ActionConfig struct {
	Type       string `yaml:"type"` // forward, drop, log, mirror
	NextHop    int    `yaml:"next_hop"`
	LogID      string `yaml:"log_id"`
	MirrorDest int    `yaml:"mirror_dest"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// Rule converts a RuleConfig into a rules.Rule.
func (rc *RuleConfig) Rule() (rules.Rule, error) {
	r := rules.Rule{
		ID:       rc.ID,
		Priority: rc.Priority,
		Enabled:  true,
	}
	if rc.Enabled != nil {
		r.Enabled = *rc.Enabled
	}

	if rc.SrcPrefix != "" {
		p, err := rules.ParsePrefix(rc.SrcPrefix)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule %d src_prefix: %w", rc.ID, err)
		}
		r.Filter.SrcPrefix = &p
	}
	if rc.DstPrefix != "" {
		p, err := rules.ParsePrefix(rc.DstPrefix)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule %d dst_prefix: %w", rc.ID, err)
		}
		r.Filter.DstPrefix = &p
	}
	r.Filter.SrcPorts = rules.PortRange{Lo: rc.SrcPortLow, Hi: rc.SrcPortHigh}
	r.Filter.DstPorts = rules.PortRange{Lo: rc.DstPortLow, Hi: rc.DstPortHigh}
	r.Filter.Protocol = rc.Protocol

	actions, err := rc.Action.ActionList()
	if err != nil {
		return rules.Rule{}, fmt.Errorf("rule %d: %w", rc.ID, err)
	}
	r.Actions = actions
	return r, nil
}

// ActionList converts an ActionConfig into a rules.ActionList.
func (ac *ActionConfig) ActionList() (rules.ActionList, error) {
	switch ac.Type {
	case "forward":
		return rules.ActionList{Primary: rules.ActionForward, NextHop: ac.NextHop}, nil
	case "drop", "":
		return rules.ActionList{Primary: rules.ActionDrop}, nil
	case "log":
		return rules.ActionList{Primary: rules.ActionLog, LogID: ac.LogID}, nil
	case "mirror":
		return rules.ActionList{Primary: rules.ActionMirror, MirrorDest: ac.MirrorDest}, nil
	default:
		return rules.ActionList{}, fmt.Errorf("unknown action type %q", ac.Type)
	}
}

// BuildRules converts every configured rule, failing on the first
// invalid entry.
func (c *Config) BuildRules() ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(c.Rules))
	for i := range c.Rules {
		r, err := c.Rules[i].Rule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
