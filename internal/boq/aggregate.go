// Package boq groups raw measured quantities into standardized
// bill-of-quantities lines.
//
// Aggregation is pure and idempotent: the same raw line set always
// produces the same BOQ lines, in the same order, with the same ids.
// Malformed lines are reported as validation errors and skipped so one
// bad line never aborts a whole run.
package boq

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tantiya-io/tantiya/internal/classify"
	"github.com/tantiya-io/tantiya/internal/model"
)

// lineNamespace makes aggregated line ids deterministic per pay item, so
// re-aggregating the same input yields byte-identical output.
var lineNamespace = uuid.MustParse("8c9e4a3d-52f1-4b6e-9a07-2d35c7f0b1a4")

// Aggregate groups raw lines by their standardized pay-item number and
// sums quantities. The unit must be identical within a group; a mismatch
// is a validation error for that group, which is then excluded rather
// than silently coerced. Output order is canonical part order, then
// subcategory, then first-appearance order. Provenance (source raw line
// ids) is kept on every output line.
func Aggregate(rawLines []model.RawQuantityLine) ([]model.BOQLine, []model.ValidationError) {
	type group struct {
		line        model.BOQLine
		subcategory string
		firstSeen   int
		mismatch    bool
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(rawLines))
	var verrs []model.ValidationError

	for i, raw := range rawLines {
		payItem := strings.TrimSpace(raw.ResourceKey)
		if payItem == "" {
			verrs = append(verrs, model.Validationf(raw.ID.String(), "missing resource key"))
			continue
		}
		if raw.Quantity < 0 {
			verrs = append(verrs, model.Validationf(raw.ID.String(), "negative quantity %v", raw.Quantity))
			continue
		}

		g, ok := groups[payItem]
		if !ok {
			cls := classify.Classify(payItem, raw.Trade)
			g = &group{
				line: model.BOQLine{
					ID:            uuid.NewSHA1(lineNamespace, []byte(payItem)),
					PayItemNumber: payItem,
					Description:   describe(raw),
					Unit:          raw.Unit,
					Part:          cls.Part,
				},
				subcategory: cls.Subcategory,
				firstSeen:   i,
			}
			groups[payItem] = g
			order = append(order, payItem)
		}

		if raw.Unit != g.line.Unit {
			if !g.mismatch {
				verrs = append(verrs, model.Validationf(payItem,
					"unit mismatch within group: %q vs %q", g.line.Unit, raw.Unit))
				g.mismatch = true
			}
			continue
		}

		g.line.Quantity += raw.Quantity
		g.line.SourceRawLineIDs = append(g.line.SourceRawLineIDs, raw.ID)
		g.line.Tags = mergeTags(g.line.Tags, raw.Tags)
	}

	keep := make([]string, 0, len(order))
	for _, key := range order {
		if g := groups[key]; !g.mismatch && len(g.line.SourceRawLineIDs) > 0 {
			keep = append(keep, key)
		}
	}

	sort.SliceStable(keep, func(i, j int) bool {
		gi, gj := groups[keep[i]], groups[keep[j]]
		ri, rj := classify.PartRank(gi.line.Part), classify.PartRank(gj.line.Part)
		if ri != rj {
			return ri < rj
		}
		if gi.subcategory != gj.subcategory {
			return gi.subcategory < gj.subcategory
		}
		return gi.firstSeen < gj.firstSeen
	})

	lines := make([]model.BOQLine, 0, len(keep))
	for _, key := range keep {
		lines = append(lines, groups[key].line)
	}
	return lines, verrs
}

// Summarize builds the run summary for a set of aggregated lines.
func Summarize(rawLines []model.RawQuantityLine, lines []model.BOQLine) model.RunSummary {
	parts := make(map[string]struct{})
	var total float64
	for _, l := range lines {
		parts[l.Part] = struct{}{}
		total += l.Quantity
	}
	return model.RunSummary{
		RawLineCount:  len(rawLines),
		BOQLineCount:  len(lines),
		TotalQuantity: total,
		PartCount:     len(parts),
	}
}

// describe prefers an explicit description from the extractor's inputs
// snapshot, falling back to the resource key.
func describe(raw model.RawQuantityLine) string {
	if d, ok := raw.InputsSnapshot["description"].(string); ok && d != "" {
		return d
	}
	return raw.ResourceKey
}

func mergeTags(existing, add []string) []string {
	for _, t := range add {
		found := false
		for _, e := range existing {
			if e == t {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, t)
		}
	}
	return existing
}
