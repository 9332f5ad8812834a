package models

import "strings"

var unitAliases = map[string]string{
	"kg":     "kg",
	"kgs":    "kg",
	"m2":     "m2",
	"m²":     "m2",
	"m^2":    "m2",
	"sqm":    "m2",
	"м2":     "m2",
	"м²":     "m2",
	"m3":     "m3",
	"m³":     "m3",
	"m^3":    "m3",
	"cbm":    "m3",
	"м3":     "m3",
	"м³":     "m3",
	"hour":   "hour",
	"hours":  "hour",
	"h":      "hour",
	"hr":     "hour",
	"hrs":    "hour",
	"saat":   "hour",
	"час":    "hour",
	"чел.-ч": "hour",
	"кг":     "kg",
}

// NormalizeUnit maps unit spellings to their canonical token (kg, m2, m3, hour).
// Unknown units are returned lower-cased and trimmed.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canon, ok := unitAliases[u]; ok {
		return canon
	}
	return u
}
