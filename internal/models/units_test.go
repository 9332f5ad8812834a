package models

import "testing"

func TestNormalizeUnit(t *testing.T) {
	tests := map[string]string{
		"kg":     "kg",
		" KG ":   "kg",
		"m²":     "m2",
		"M2":     "m2",
		"m³":     "m3",
		"saat":   "hour",
		"h":      "hour",
		"Hours":  "hour",
		"pieces": "pieces",
		"":       "",
	}
	for in, want := range tests {
		if got := NormalizeUnit(in); got != want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourcePriority(t *testing.T) {
	if !(SourcePriority("Internal") > SourcePriority("Poz") &&
		SourcePriority("Poz") > SourcePriority("FER") &&
		SourcePriority("FER") > SourcePriority("catalogue")) {
		t.Error("expected internal > poz > fer > other")
	}
}
