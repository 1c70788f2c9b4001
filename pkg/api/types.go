// Package api implements the HTTP REST API and Prometheus metrics
// endpoint over a classification engine.
package api

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime    string `json:"uptime"`
	RuleCount int    `json:"rule_count"`
}

// RuleInfo is the JSON form of a rule.
type RuleInfo struct {
	ID          uint32     `json:"id"`
	Priority    int        `json:"priority"`
	Enabled     bool       `json:"enabled"`
	SrcPrefix   string     `json:"src_prefix,omitempty"`
	DstPrefix   string     `json:"dst_prefix,omitempty"`
	SrcPortLow  uint16     `json:"src_port_low,omitempty"`
	SrcPortHigh uint16     `json:"src_port_high,omitempty"`
	DstPortLow  uint16     `json:"dst_port_low,omitempty"`
	DstPortHigh uint16     `json:"dst_port_high,omitempty"`
	Protocol    uint8      `json:"protocol,omitempty"`
	Action      ActionInfo `json:"action"`
	MatchCount  uint64     `json:"match_count"`
}

// ActionInfo is the JSON form of an action list.
type ActionInfo struct {
	Type       string `json:"type"`
	NextHop    int    `json:"next_hop,omitempty"`
	LogID      string `json:"log_id,omitempty"`
	MirrorDest int    `json:"mirror_dest,omitempty"`
}

// ClassifyRequest is one packet header to classify.
type ClassifyRequest struct {
	SrcIP    string `json:"src_ip"`
	DstIP    string `json:"dst_ip"`
	SrcPort  uint16 `json:"src_port"`
	DstPort  uint16 `json:"dst_port"`
	Protocol uint8  `json:"protocol"`
}

// ClassifyResponse is the outcome of one classification.
type ClassifyResponse struct {
	Matched bool        `json:"matched"`
	RuleID  uint32      `json:"rule_id,omitempty"`
	Action  *ActionInfo `json:"action,omitempty"`
}

// StatisticsResponse maps rule IDs to match counts.
type StatisticsResponse struct {
	Rules map[uint32]uint64 `json:"rules"`
}
