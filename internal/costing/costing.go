// Package costing derives DUPA-style unit-cost breakdowns for pay items:
// per-unit labor/equipment/material costs, regulated markups (OCM and
// contractor's profit), VAT, and the quantity-scaled total.
//
// Everything is pure computation over already-fetched data. Amounts are
// in pesos, rounded half-away-from-zero to centavos at each derivation
// stage so stored figures match rendered figures.
package costing

import (
	"math"

	"github.com/tantiya-io/tantiya/internal/model"
)

// NormalizePct converts a markup or tax percentage to a decimal fraction.
// Values in [0,1) pass through; values in [1,100] are treated as
// whole-number percents and divided by 100 (12 means 12%, never 1200%).
// Negative values and values above 100 are validation errors.
func NormalizePct(name string, p float64) (float64, error) {
	switch {
	case p < 0:
		return 0, model.Validationf(name, "percentage must not be negative, got %v", p)
	case p < 1:
		return p, nil
	case p <= 100:
		return p / 100, nil
	default:
		return 0, model.Validationf(name, "percentage out of range, got %v", p)
	}
}

// ComputeCost builds the full cost breakdown for one pay item. The labor,
// equipment and material lists are per-unit resource requirements for one
// unit of the pay item; quantity only scales the final amount. Negative
// quantities or rates are rejected, never clamped.
func ComputeCost(labor []model.LaborItem, equipment []model.EquipmentItem, material []model.MaterialItem, quantity, ocmPct, cpPct, vatPct float64) (model.CostBreakdown, error) {
	if quantity < 0 {
		return model.CostBreakdown{}, model.Validationf("quantity", "must not be negative, got %v", quantity)
	}
	ocm, err := NormalizePct("ocm_pct", ocmPct)
	if err != nil {
		return model.CostBreakdown{}, err
	}
	cp, err := NormalizePct("cp_pct", cpPct)
	if err != nil {
		return model.CostBreakdown{}, err
	}
	vat, err := NormalizePct("vat_pct", vatPct)
	if err != nil {
		return model.CostBreakdown{}, err
	}

	var laborCost float64
	for _, l := range labor {
		if l.Persons < 0 || l.Hours < 0 || l.HourlyRate < 0 {
			return model.CostBreakdown{}, model.Validationf(l.Designation, "negative labor input")
		}
		laborCost += l.Persons * l.Hours * l.HourlyRate
	}
	var equipmentCost float64
	for _, e := range equipment {
		if e.Units < 0 || e.Hours < 0 || e.HourlyRate < 0 {
			return model.CostBreakdown{}, model.Validationf(e.Designation, "negative equipment input")
		}
		equipmentCost += e.Units * e.Hours * e.HourlyRate
	}
	var materialCost float64
	for _, m := range material {
		if m.Quantity < 0 || m.UnitCost < 0 {
			return model.CostBreakdown{}, model.Validationf(m.Designation, "negative material input")
		}
		materialCost += m.Quantity * m.UnitCost
	}

	b := model.CostBreakdown{
		LaborCost:     round2(laborCost),
		EquipmentCost: round2(equipmentCost),
		MaterialCost:  round2(materialCost),
	}
	b.DirectCost = round2(b.LaborCost + b.EquipmentCost + b.MaterialCost)
	b.OCMCost = round2(b.DirectCost * ocm)
	b.CPCost = round2(b.DirectCost * cp)
	b.SubtotalWithMarkup = round2(b.DirectCost + b.OCMCost + b.CPCost)
	b.VATCost = round2(b.SubtotalWithMarkup * vat)
	b.TotalUnitCost = round2(b.SubtotalWithMarkup + b.VATCost)
	b.TotalAmount = round2(b.TotalUnitCost * quantity)
	return b, nil
}

// RecomputeQuantity re-prices a cost line after a quantity edit. The unit
// cost is quantity-independent, so only the total amount changes; the
// per-unit resource costs are never re-derived. O(1).
func RecomputeQuantity(line model.CostLine, newQuantity float64) (model.CostLine, error) {
	if newQuantity < 0 {
		return model.CostLine{}, model.Validationf("quantity", "must not be negative, got %v", newQuantity)
	}
	line.Quantity = newQuantity
	line.Breakdown.TotalAmount = round2(line.Breakdown.TotalUnitCost * newQuantity)
	return line, nil
}

// Summarize rolls the per-line breakdowns up into the estimate summary.
// Per-unit stages are scaled by each line's quantity before summing.
func Summarize(lines []model.CostLine) model.CostSummary {
	var s model.CostSummary
	for _, l := range lines {
		s.TotalDirectCost += l.Breakdown.DirectCost * l.Quantity
		s.TotalOCM += l.Breakdown.OCMCost * l.Quantity
		s.TotalCP += l.Breakdown.CPCost * l.Quantity
		s.SubtotalWithMarkup += l.Breakdown.SubtotalWithMarkup * l.Quantity
		s.TotalVAT += l.Breakdown.VATCost * l.Quantity
		s.GrandTotal += l.Breakdown.TotalAmount
	}
	s.TotalDirectCost = round2(s.TotalDirectCost)
	s.TotalOCM = round2(s.TotalOCM)
	s.TotalCP = round2(s.TotalCP)
	s.SubtotalWithMarkup = round2(s.SubtotalWithMarkup)
	s.TotalVAT = round2(s.TotalVAT)
	s.GrandTotal = round2(s.GrandTotal)
	s.RateItemsCount = len(lines)
	return s
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
