package indexer

import (
	"reflect"
	"testing"

	"github.com/hyperjump/normlab/internal/models"
)

func TestAnnotator_Annotate(t *testing.T) {
	tests := []struct {
		name      string
		heading   string
		text      string
		lang      string
		workTypes []string
		normCodes []string
		unit      string
	}{
		{
			name:      "turkish rebar with poz code",
			heading:   "DONATI İŞLERİ",
			text:      "Poz No: 15.160.1003 nervürlü çelik, ton başına kg hesabı",
			lang:      "tr",
			workTypes: []string{WorkTypeRebar},
			normCodes: []string{"Poz 15.160.1003"},
			unit:      "kg",
		},
		{
			name:      "russian formwork and concrete with fer code",
			text:      "ФЕР06-01-034-01 Устройство опалубки и укладка бетона, м3 и м2",
			lang:      "ru",
			workTypes: []string{WorkTypeFormwork, WorkTypeConcrete},
			normCodes: []string{"FER06-01-034-01"},
			unit:      "m2",
		},
		{
			name:      "english hour unit only",
			text:      "Placing concrete in slabs requires 0.5 hours per cubic metre",
			lang:      "en",
			workTypes: []string{WorkTypeConcrete},
			normCodes: []string{},
			unit:      "hour",
		},
		{
			name:      "no annotations",
			text:      "General provisions",
			workTypes: []string{},
			normCodes: []string{},
			unit:      "",
		},
	}
	a := NewAnnotator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &models.Chunk{Heading: tt.heading, Text: tt.text}
			a.Annotate(ch, tt.lang, "TR ")
			if !reflect.DeepEqual(ch.WorkTypes, tt.workTypes) {
				t.Errorf("work types = %v, want %v", ch.WorkTypes, tt.workTypes)
			}
			if !reflect.DeepEqual(ch.NormCodes, tt.normCodes) {
				t.Errorf("norm codes = %v, want %v", ch.NormCodes, tt.normCodes)
			}
			if ch.Unit != tt.unit {
				t.Errorf("unit = %q, want %q", ch.Unit, tt.unit)
			}
			if ch.Locale != "tr" {
				t.Errorf("locale = %q, want tr", ch.Locale)
			}
		})
	}
}

func TestNormCodes_orderAndDedup(t *testing.T) {
	text := "Poz. 21.011 then FER 06-01-015-01, again Poz 21.011 and fer06-01-015-01"
	got := NormCodes(text)
	want := []string{"Poz 21.011", "FER06-01-015-01"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormCodes = %v, want %v", got, want)
	}
}

func TestNormCodes_ignoresWordsStartingWithFer(t *testing.T) {
	if got := NormCodes("Ferro-concrete and FERMENT"); len(got) != 0 {
		t.Errorf("NormCodes = %v, want none", got)
	}
}

func TestDetectUnit_priority(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"1 m3 beton, 12 kg çelik", "kg"},
		{"area in m² and volume m³", "m2"},
		{"8 saat", "hour"},
		{"volume 3 m3", "m3"},
		{"no unit", ""},
	}
	for _, tt := range tests {
		if got := DetectUnit(tt.text); got != tt.want {
			t.Errorf("DetectUnit(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
