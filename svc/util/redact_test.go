package util

import (
	"strings"
	"testing"
)

func TestRedactIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.77", "203.0.113.0"},
		{"203.0.113.77:8080", "203.0.113.0"},
		{"10.1.2.3", "10.1.2.0"},
	}
	for _, tt := range tests {
		if got := RedactIP(tt.in); got != tt.want {
			t.Errorf("RedactIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactIPv6DropsInterfaceBits(t *testing.T) {
	got := RedactIP("2001:db8:1234:5678:9abc:def0:1234:5678")
	if !strings.HasPrefix(got, "2001:db8:") {
		t.Errorf("prefix lost: %q", got)
	}
	if strings.Contains(got, "5678") {
		t.Errorf("host bits survived redaction: %q", got)
	}
}

func TestRedactIPUnparseableFallsBackToHash(t *testing.T) {
	got := RedactIP("not an address")
	if !strings.HasPrefix(got, "hash:") {
		t.Errorf("unparseable input must hash, got %q", got)
	}
	if RedactIP("not an address") != got {
		t.Error("hash fallback must be deterministic")
	}
}
