// Package classify maps raw pay-item codes to standardized DPWH-style
// bill parts and defines the canonical part ordering.
//
// All functions are pure and never fail: unrecognizable input falls back
// to a deterministic default part so the surrounding aggregation loop can
// keep processing other lines.
package classify

import (
	"sort"
	"strings"
)

// Result is the outcome of classifying one pay item.
type Result struct {
	Part        string `json:"part"`
	PartName    string `json:"part_name"`
	Subcategory string `json:"subcategory"`
}

// DefaultPart receives items with no recognized part label and no
// matching item-number prefix.
const DefaultPart = "PART B"

// partNames is the canonical part sequence. Order matters: SortParts and
// BOQ output ordering follow this table.
var partNames = []struct {
	part string
	name string
}{
	{"PART A", "Facilities for the Engineer"},
	{"PART B", "Other General Requirements"},
	{"PART C", "Earthworks"},
	{"PART D", "Reinforced Concrete Works"},
	{"PART E", "Finishing and Other Civil Works"},
	{"PART F", "Electrical Works"},
	{"PART G", "Mechanical Works"},
}

// prefixRules maps the leading digits of an item number to a part. Longer
// prefixes are matched first.
var prefixRules = []struct {
	prefix string
	part   string
}{
	{"10", "PART E"},
	{"11", "PART F"},
	{"12", "PART G"},
	{"13", "PART G"},
	{"8", "PART C"},
	{"9", "PART D"},
}

var partRank = func() map[string]int {
	m := make(map[string]int, len(partNames))
	for i, p := range partNames {
		m[p.part] = i
	}
	return m
}()

// Classify resolves an item number plus an optional category hint to a
// canonical part. Resolution order: an explicit recognized part label in
// the hint wins; otherwise the numeric prefix of the item number is
// matched against the fixed rule table; otherwise DefaultPart.
func Classify(itemNumber, categoryHint string) Result {
	if part, ok := NormalizePart(categoryHint); ok {
		return result(part, categoryHint)
	}
	digits := leadingDigits(itemNumber)
	for _, rule := range prefixRules {
		if strings.HasPrefix(digits, rule.prefix) {
			return result(rule.part, categoryHint)
		}
	}
	return result(DefaultPart, categoryHint)
}

func result(part, hint string) Result {
	r := Result{Part: part, Subcategory: strings.TrimSpace(hint)}
	if i, ok := partRank[part]; ok {
		r.PartName = partNames[i].name
	}
	return r
}

// NormalizePart accepts "c", "C", "PART C", "part c" or a label with a
// trailing description ("Part C - Earthworks") and emits the canonical
// "PART C" form. The second return is false when the input carries no
// recognizable part letter.
func NormalizePart(label string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	s = strings.TrimPrefix(s, "PART")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	letter := s[0]
	if letter < 'A' || letter > 'Z' {
		return "", false
	}
	// A bare letter, or a letter followed by a separator ("C - Earthworks").
	if len(s) > 1 {
		switch s[1] {
		case ' ', '-', ':', '.', ')':
		default:
			return "", false
		}
	}
	part := "PART " + string(letter)
	if _, ok := partRank[part]; !ok {
		return "", false
	}
	return part, true
}

// PartName returns the canonical display name for a part, or "" for
// unrecognized parts.
func PartName(part string) string {
	if i, ok := partRank[part]; ok {
		return partNames[i].name
	}
	return ""
}

// SortParts orders parts by the canonical sequence. Unrecognized parts
// sort last and keep their relative input order.
func SortParts(parts []string) []string {
	out := make([]string, len(parts))
	copy(out, parts)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := partRank[out[i]]
		rj, jok := partRank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}

// PartRank returns the canonical sort position of a part. Unrecognized
// parts rank after all known parts.
func PartRank(part string) int {
	if i, ok := partRank[part]; ok {
		return i
	}
	return len(partNames)
}

func leadingDigits(itemNumber string) string {
	s := strings.TrimSpace(itemNumber)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
