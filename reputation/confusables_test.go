package reputation

import "testing"

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"G00gle", "google"},
		{"Micr0s0ft", "microsoft"},
		{"PayPaI", "paypal"},
		{"Àpple-Störe", "apple-store"},
		{"paypal", "paypal"},
		{"amaz0n", "amazon"},
		{"appl3", "apple"},
		{"аpple", "apple"},    // Cyrillic а
		{"gοοgle", "google"},  // Greek omicron
		{"CHASE", "chase"},
		{"in-fo_site", "in-fosite"},
		{"wiki", "wiki"}, // lower-case i stays i
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLabelIdempotent(t *testing.T) {
	inputs := []string{"G00gle", "PayPaI", "Àpple-Störe", "x1y2z3", "Ⅸ-ﬁnance", "mіcrosoft", "$ecure@pp"}
	for _, in := range inputs {
		once := NormalizeLabel(in)
		if twice := NormalizeLabel(once); twice != once {
			t.Errorf("NormalizeLabel not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
