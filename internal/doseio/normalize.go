// Package doseio reads dose histories from CSV and JSON documents produced
// by spreadsheets and other trackers.
package doseio

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

var folder = cases.Fold()

// key folds case, strips accents and collapses separators so that
// "Östradiol-Valerat" and "ostradiol valerat" compare equal.
func key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '/'
	})
	return strings.Join(fields, " ")
}

var routeAliases = map[string]pk.Route{
	"injection":         pk.Injection,
	"inj":               pk.Injection,
	"im":                pk.Injection,
	"intramuscular":     pk.Injection,
	"sc":                pk.Injection,
	"subq":              pk.Injection,
	"subcutaneous":      pk.Injection,
	"oral":              pk.Oral,
	"po":                pk.Oral,
	"pill":              pk.Oral,
	"tablet":            pk.Oral,
	"sublingual":        pk.Sublingual,
	"sl":                pk.Sublingual,
	"sublingual tablet": pk.Sublingual,
	"patch":             pk.Patch,
	"transdermal":       pk.Patch,
	"transdermal patch": pk.Patch,
	"pflaster":          pk.Patch,
	"gel":               pk.Gel,
	"topical gel":       pk.Gel,
}

var compoundAliases = map[string]pk.Compound{
	"e2":                    pk.Estradiol,
	"estradiol":             pk.Estradiol,
	"oestradiol":            pk.Estradiol,
	"ostradiol":             pk.Estradiol,
	"estradiol hemihydrate": pk.Estradiol,
	"ev":                    pk.EstradiolValerate,
	"valerate":              pk.EstradiolValerate,
	"estradiol valerate":    pk.EstradiolValerate,
	"oestradiol valerate":   pk.EstradiolValerate,
	"ostradiolvalerat":      pk.EstradiolValerate,
	"ostradiol valerat":     pk.EstradiolValerate,
	"valerato de estradiol": pk.EstradiolValerate,
	"cpa":                   pk.CyproteroneAcetate,
	"cyproterone":           pk.CyproteroneAcetate,
	"cyproterone acetate":   pk.CyproteroneAcetate,
	"androcur":              pk.CyproteroneAcetate,
	"eb":                    pk.EstradiolBenzoate,
	"estradiol benzoate":    pk.EstradiolBenzoate,
	"ec":                    pk.EstradiolCypionate,
	"estradiol cypionate":   pk.EstradiolCypionate,
	"een":                   pk.EstradiolEnanthate,
	"estradiol enanthate":   pk.EstradiolEnanthate,
	"eun":                   pk.EstradiolUndecylate,
	"estradiol undecylate":  pk.EstradiolUndecylate,
}

// NormalizeRoute maps a route name or common alias to its canonical name.
// Unknown names are returned trimmed so validation can report them.
func NormalizeRoute(s string) string {
	if r, ok := routeAliases[key(s)]; ok {
		return string(r)
	}
	return strings.TrimSpace(s)
}

// NormalizeCompound maps a compound code, name or common alias to its
// canonical code. Unknown names are returned trimmed.
func NormalizeCompound(s string) string {
	if c, ok := compoundAliases[key(s)]; ok {
		return string(c)
	}
	return strings.TrimSpace(s)
}

var columnAliases = map[string]string{
	"administered at":       colTime,
	"administeredat":        colTime,
	"time":                  colTime,
	"date":                  colTime,
	"datetime":              colTime,
	"timestamp":             colTime,
	"route":                 colRoute,
	"compound":              colCompound,
	"ester":                 colCompound,
	"medication":            colCompound,
	"raw mg":                colRaw,
	"raw mass mg":           colRaw,
	"rawmassmg":             colRaw,
	"dose mg":               colRaw,
	"mg":                    colRaw,
	"e2 mg":                 colE2,
	"e2 mass mg":            colE2,
	"e2massmg":              colE2,
	"sublingual tier":       colTier,
	"sublingualtier":        colTier,
	"tier":                  colTier,
	"hold minutes":          colHold,
	"holdminutes":           colHold,
	"hold":                  colHold,
	"theta":                 colTheta,
	"patch mode":            colPatchMode,
	"patch total mg":        colPatchTotal,
	"patch rate ug per day": colPatchRate,
	"patch rate":            colPatchRate,
	"patch wear hours":      colPatchWear,
	"wear hours":            colPatchWear,
	"notes":                 colNotes,
	"note":                  colNotes,
	"comment":               colNotes,
}

// Canonical CSV columns.
const (
	colTime       = "administered_at"
	colRoute      = "route"
	colCompound   = "compound"
	colRaw        = "raw_mg"
	colE2         = "e2_mg"
	colTier       = "sublingual_tier"
	colHold       = "hold_minutes"
	colTheta      = "theta"
	colPatchMode  = "patch_mode"
	colPatchTotal = "patch_total_mg"
	colPatchRate  = "patch_rate_ug_per_day"
	colPatchWear  = "patch_wear_hours"
	colNotes      = "notes"
)

// Columns lists the canonical CSV header in export order.
func Columns() []string {
	return []string{
		colTime, colRoute, colCompound, colRaw, colE2, colTier, colHold,
		colTheta, colPatchMode, colPatchTotal, colPatchRate, colPatchWear, colNotes,
	}
}

func normalizeColumn(s string) string {
	k := key(strings.TrimPrefix(s, "\ufeff"))
	if c, ok := columnAliases[k]; ok {
		return c
	}
	for _, c := range Columns() {
		if key(c) == k {
			return c
		}
	}
	return ""
}
