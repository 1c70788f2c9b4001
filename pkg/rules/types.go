// Package rules defines the classification rule model and the
// authoritative rule store.
package rules

import (
	"encoding/binary"
	"fmt"
)

// ActionType discriminates the primary action of a rule.
type ActionType uint8

const (
	ActionDrop ActionType = iota
	ActionForward
	ActionLog
	ActionMirror
)

// String returns the action type name.
func (t ActionType) String() string {
	switch t {
	case ActionDrop:
		return "drop"
	case ActionForward:
		return "forward"
	case ActionLog:
		return "log"
	case ActionMirror:
		return "mirror"
	default:
		return fmt.Sprintf("action(%d)", uint8(t))
	}
}

// ActionList is the action set attached to a rule. Primary selects the
// variant; the payload fields are meaningful only for their variant.
type ActionList struct {
	Primary    ActionType
	NextHop    int    // forward: next-hop identifier
	LogID      string // log: event identifier
	MirrorDest int    // mirror: mirror destination identifier
}

// String returns a compact action description.
func (a ActionList) String() string {
	switch a.Primary {
	case ActionForward:
		return fmt.Sprintf("forward(next_hop=%d)", a.NextHop)
	case ActionLog:
		return fmt.Sprintf("log(%q)", a.LogID)
	case ActionMirror:
		return fmt.Sprintf("mirror(dest=%d)", a.MirrorDest)
	default:
		return a.Primary.String()
	}
}

// Prefix is an IPv4 prefix: a 32-bit address with a length 0..32.
// The address is stored with host bits cleared.
type Prefix struct {
	Addr uint32
	Len  uint8
}

// mask returns the netmask for a prefix length. Len 0 yields 0.
func mask(plen uint8) uint32 {
	if plen == 0 {
		return 0
	}
	return ^uint32(0) << (32 - plen)
}

// Covers reports whether addr falls inside the prefix.
func (p Prefix) Covers(addr uint32) bool {
	return addr&mask(p.Len) == p.Addr
}

// String formats the prefix in a.b.c.d/len notation.
func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", FormatIPv4(p.Addr), p.Len)
}

// PortRange is an inclusive port interval. The zero value [0,0] is the
// wildcard sentinel meaning "any port".
type PortRange struct {
	Lo uint16
	Hi uint16
}

// IsWildcard reports whether the range is the any-port sentinel.
func (r PortRange) IsWildcard() bool { return r.Lo == 0 && r.Hi == 0 }

// Contains reports whether the port falls in the range. The wildcard
// range contains every port.
func (r PortRange) Contains(port uint16) bool {
	if r.IsWildcard() {
		return true
	}
	return port >= r.Lo && port <= r.Hi
}

// String formats the range; the wildcard renders as "any".
func (r PortRange) String() string {
	if r.IsWildcard() {
		return "any"
	}
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}

// Filter holds the match conditions of a rule. Nil prefixes, wildcard
// port ranges, and protocol 0 match everything for their field.
type Filter struct {
	SrcPrefix *Prefix
	DstPrefix *Prefix
	SrcPorts  PortRange
	DstPorts  PortRange
	Protocol  uint8 // 0 = any
}

// Matches is the authoritative per-rule check: it evaluates every
// field, including IP prefixes. The field indexes only narrow the
// candidate set; this decides.
func (f *Filter) Matches(h PacketHeader) bool {
	if f.Protocol != 0 && f.Protocol != h.Protocol {
		return false
	}
	if !f.SrcPorts.Contains(h.SrcPort) {
		return false
	}
	if !f.DstPorts.Contains(h.DstPort) {
		return false
	}
	if f.SrcPrefix != nil && !f.SrcPrefix.Covers(h.SrcIP) {
		return false
	}
	if f.DstPrefix != nil && !f.DstPrefix.Covers(h.DstIP) {
		return false
	}
	return true
}

// Validate checks structural validity: prefix lengths, cleared host
// bits, and port range ordering.
func (f *Filter) Validate() error {
	for _, p := range []*Prefix{f.SrcPrefix, f.DstPrefix} {
		if p == nil {
			continue
		}
		if p.Len > 32 {
			return invalidRulef("prefix length %d out of range", p.Len)
		}
		if p.Addr&^mask(p.Len) != 0 {
			return invalidRulef("prefix %s has host bits set", p)
		}
	}
	for _, r := range []PortRange{f.SrcPorts, f.DstPorts} {
		if r.Lo > r.Hi {
			return invalidRulef("port range [%d,%d] inverted", r.Lo, r.Hi)
		}
	}
	return nil
}

// Fingerprint returns a canonical byte encoding of the filter, used as
// the Bloom pre-filter key and for duplicate detection.
func (f *Filter) Fingerprint() []byte {
	b := make([]byte, 0, 20)
	for _, p := range []*Prefix{f.SrcPrefix, f.DstPrefix} {
		if p == nil {
			b = append(b, 0, 0, 0, 0, 0xFF)
		} else {
			b = binary.BigEndian.AppendUint32(b, p.Addr)
			b = append(b, p.Len)
		}
	}
	b = binary.BigEndian.AppendUint16(b, f.SrcPorts.Lo)
	b = binary.BigEndian.AppendUint16(b, f.SrcPorts.Hi)
	b = binary.BigEndian.AppendUint16(b, f.DstPorts.Lo)
	b = binary.BigEndian.AppendUint16(b, f.DstPorts.Hi)
	b = append(b, f.Protocol)
	return b
}

// Equal reports whether two filters match the same traffic description.
func (f *Filter) Equal(other *Filter) bool {
	return string(f.Fingerprint()) == string(other.Fingerprint())
}

// String formats the filter with "any" for wildcard fields.
func (f *Filter) String() string {
	src, dst := "any", "any"
	if f.SrcPrefix != nil {
		src = f.SrcPrefix.String()
	}
	if f.DstPrefix != nil {
		dst = f.DstPrefix.String()
	}
	proto := "any"
	if f.Protocol != 0 {
		proto = fmt.Sprintf("%d", f.Protocol)
	}
	return fmt.Sprintf("src=%s dst=%s sport=%s dport=%s proto=%s",
		src, dst, f.SrcPorts, f.DstPorts, proto)
}

// Rule is a classification rule. Higher Priority wins; ties break on
// lower ID. Match statistics live in the store, not on the rule value.
type Rule struct {
	ID       uint32
	Priority int
	Enabled  bool
	Filter   Filter
	Actions  ActionList
}

// Validate checks the rule's filter.
func (r *Rule) Validate() error {
	return r.Filter.Validate()
}

// PacketHeader carries the classification-relevant fields of a packet.
// VLAN and TOS are carried for callers but do not participate in the
// match.
type PacketHeader struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	VLAN     uint16
	TOS      uint8
}

// Fingerprint returns a canonical byte encoding of the header's match
// fields, used as the advisory Bloom probe key.
func (h PacketHeader) Fingerprint() []byte {
	b := make([]byte, 0, 13)
	b = binary.BigEndian.AppendUint32(b, h.SrcIP)
	b = binary.BigEndian.AppendUint32(b, h.DstIP)
	b = binary.BigEndian.AppendUint16(b, h.SrcPort)
	b = binary.BigEndian.AppendUint16(b, h.DstPort)
	b = append(b, h.Protocol)
	return b
}

// String formats the header for logging.
func (h PacketHeader) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d proto %d",
		FormatIPv4(h.SrcIP), h.SrcPort, FormatIPv4(h.DstIP), h.DstPort, h.Protocol)
}

// ClassificationResult is the outcome of one classification. Matched
// false means no enabled rule matched; it is not an error.
type ClassificationResult struct {
	Matched bool
	RuleID  uint32
	Actions ActionList
}
