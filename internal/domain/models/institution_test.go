package models

import "testing"

func TestGroupings(t *testing.T) {
	gs := Groupings{
		{Key: "RGP-LYC-BREST", Name: "Lycées de Brest", Codes: []string{"0290009C", "0290010D"}},
	}

	tests := []struct {
		code    string
		key     string
		grouped bool
	}{
		{"0290009C", "RGP-LYC-BREST", true},
		{"0290010D", "RGP-LYC-BREST", true},
		{"0370001A", "0370001A", false},
	}
	for _, tc := range tests {
		if got := gs.KeyOf(tc.code); got != tc.key {
			t.Errorf("KeyOf(%q) = %q, want %q", tc.code, got, tc.key)
		}
		if _, ok := gs.Of(tc.code); ok != tc.grouped {
			t.Errorf("Of(%q) grouped = %v, want %v", tc.code, ok, tc.grouped)
		}
	}
}
