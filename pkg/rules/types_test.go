package rules

import "testing"

func TestPrefixCovers(t *testing.T) {
	tests := []struct {
		prefix string
		addr   string
		want   bool
	}{
		{"192.168.1.0/24", "192.168.1.101", true},
		{"192.168.1.0/24", "192.168.2.1", false},
		{"10.0.0.0/8", "10.255.255.255", true},
		{"10.0.0.0/8", "11.0.0.0", false},
		{"0.0.0.0/0", "8.8.8.8", true},
		{"0.0.0.0/0", "255.255.255.255", true},
		{"172.16.5.4/32", "172.16.5.4", true},
		{"172.16.5.4/32", "172.16.5.5", false},
	}
	for _, tt := range tests {
		p := MustPrefix(tt.prefix)
		addr, err := ParseIPv4(tt.addr)
		if err != nil {
			t.Fatalf("ParseIPv4(%q): %v", tt.addr, err)
		}
		if got := p.Covers(addr); got != tt.want {
			t.Errorf("%s covers %s = %v, want %v", tt.prefix, tt.addr, got, tt.want)
		}
	}
}

func TestPortRange(t *testing.T) {
	wild := PortRange{}
	if !wild.IsWildcard() {
		t.Error("zero range should be wildcard")
	}
	for _, p := range []uint16{0, 1, 80, 65535} {
		if !wild.Contains(p) {
			t.Errorf("wildcard should contain %d", p)
		}
	}

	r := PortRange{Lo: 80, Hi: 443}
	tests := []struct {
		port uint16
		want bool
	}{
		{79, false}, {80, true}, {100, true}, {443, true}, {444, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.port); got != tt.want {
			t.Errorf("[80,443] contains %d = %v, want %v", tt.port, got, tt.want)
		}
	}

	full := PortRange{Lo: 0, Hi: 65535}
	for _, p := range []uint16{0, 32768, 65535} {
		if !full.Contains(p) {
			t.Errorf("[0,65535] should contain %d", p)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	h := PacketHeader{
		SrcIP:    0xC0A80165, // 192.168.1.101
		DstIP:    0x08080808,
		SrcPort:  33333,
		DstPort:  80,
		Protocol: 6,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches all", Filter{}, true},
		{"src prefix hit", Filter{SrcPrefix: MustPrefix("192.168.1.0/24")}, true},
		{"src prefix miss", Filter{SrcPrefix: MustPrefix("192.168.2.0/24")}, false},
		{"dst prefix hit", Filter{DstPrefix: MustPrefix("8.8.8.8/32")}, true},
		{"protocol hit", Filter{Protocol: 6}, true},
		{"protocol miss", Filter{Protocol: 17}, false},
		{"dst port hit", Filter{DstPorts: PortRange{Lo: 80, Hi: 443}}, true},
		{"dst port miss", Filter{DstPorts: PortRange{Lo: 443, Hi: 443}}, false},
		{"src port hit", Filter{SrcPorts: PortRange{Lo: 32768, Hi: 65535}}, true},
		{"combined", Filter{
			SrcPrefix: MustPrefix("192.168.0.0/16"),
			DstPorts:  PortRange{Lo: 80, Hi: 80},
			Protocol:  6,
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(h); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterValidate(t *testing.T) {
	bad := Filter{SrcPorts: PortRange{Lo: 100, Hi: 10}}
	if err := bad.Validate(); KindOf(err) != KindInvalidRule {
		t.Errorf("inverted range: got %v, want invalid rule", err)
	}

	badPrefix := Filter{SrcPrefix: &Prefix{Addr: 0x0A000000, Len: 33}}
	if err := badPrefix.Validate(); KindOf(err) != KindInvalidRule {
		t.Errorf("prefix len 33: got %v, want invalid rule", err)
	}

	hostBits := Filter{SrcPrefix: &Prefix{Addr: 0x0A000001, Len: 8}}
	if err := hostBits.Validate(); KindOf(err) != KindInvalidRule {
		t.Errorf("host bits set: got %v, want invalid rule", err)
	}

	ok := Filter{
		SrcPrefix: MustPrefix("10.0.0.0/8"),
		DstPorts:  PortRange{Lo: 80, Hi: 443},
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid filter rejected: %v", err)
	}
}

func TestFilterFingerprint(t *testing.T) {
	a := Filter{SrcPrefix: MustPrefix("10.0.0.0/8"), Protocol: 6}
	b := Filter{SrcPrefix: MustPrefix("10.0.0.0/8"), Protocol: 6}
	c := Filter{SrcPrefix: MustPrefix("10.0.0.0/9"), Protocol: 6}

	if string(a.Fingerprint()) != string(b.Fingerprint()) {
		t.Error("identical filters should share a fingerprint")
	}
	if string(a.Fingerprint()) == string(c.Fingerprint()) {
		t.Error("distinct filters should not share a fingerprint")
	}
	if !a.Equal(&b) || a.Equal(&c) {
		t.Error("Equal disagrees with fingerprints")
	}

	// A /0 prefix must differ from no prefix at all.
	def := Filter{SrcPrefix: MustPrefix("0.0.0.0/0")}
	none := Filter{}
	if string(def.Fingerprint()) == string(none.Fingerprint()) {
		t.Error("default route filter and empty filter fingerprints collide")
	}
}

func TestActionListString(t *testing.T) {
	tests := []struct {
		a    ActionList
		want string
	}{
		{ActionList{Primary: ActionDrop}, "drop"},
		{ActionList{Primary: ActionForward, NextHop: 10}, "forward(next_hop=10)"},
		{ActionList{Primary: ActionLog, LogID: "web"}, `log("web")`},
		{ActionList{Primary: ActionMirror, MirrorDest: 3}, "mirror(dest=3)"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
