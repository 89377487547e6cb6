package normalize

import (
	"reflect"
	"testing"
)

func TestUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"F1700IVH", "f1700ivh"},
		{"  f1700ivh ", "f1700ivh"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Username(tt.in); got != tt.want {
			t.Errorf("Username(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0290009c", "0290009C"},
		{" 0290009C\t", "0290009C"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Code(tt.in); got != tt.want {
			t.Errorf("Code(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	if got := Name("  Lycée   Jean\tMoulin "); got != "Lycée Jean Moulin" {
		t.Errorf("Name = %q", got)
	}
}

func TestKey_CaseInsensitive(t *testing.T) {
	if Key("TS2") != Key(" ts2 ") {
		t.Errorf("expected Key to fold case and trim: %q vs %q", Key("TS2"), Key(" ts2 "))
	}
	if Key("TS2") == Key("TS3") {
		t.Error("distinct classes must not fold to the same key")
	}
}

func TestCodes(t *testing.T) {
	got := Codes([]string{"0290009c", "", "0290010D", "0290009C "})
	want := []string{"0290009C", "0290010D"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Codes = %v, want %v", got, want)
	}
}
