package model

import "github.com/google/uuid"

// LaborItem is one labor resource needed to produce one unit of a pay item.
type LaborItem struct {
	Designation string  `json:"designation"`
	Persons     float64 `json:"persons"`
	Hours       float64 `json:"hours"`
	HourlyRate  float64 `json:"hourly_rate"`
}

// EquipmentItem is one equipment resource per unit of a pay item.
type EquipmentItem struct {
	Designation string  `json:"designation"`
	Units       float64 `json:"units"`
	Hours       float64 `json:"hours"`
	HourlyRate  float64 `json:"hourly_rate"`
}

// MaterialItem is one material resource per unit of a pay item.
type MaterialItem struct {
	Designation string  `json:"designation"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
}

// RateInput is the per-pay-item resource rate table supplied by the
// master-data collaborator when an estimate is created.
type RateInput struct {
	PayItemNumber  string          `json:"pay_item_number"`
	LaborItems     []LaborItem     `json:"labor_items"`
	EquipmentItems []EquipmentItem `json:"equipment_items"`
	MaterialItems  []MaterialItem  `json:"material_items"`
}

// CostBreakdown is the full DUPA-style derivation for one pay item.
// Labor/equipment/material costs are per unit of the pay item and are
// independent of Quantity; only TotalAmount scales with it.
type CostBreakdown struct {
	LaborCost          float64 `json:"labor_cost"`
	EquipmentCost      float64 `json:"equipment_cost"`
	MaterialCost       float64 `json:"material_cost"`
	DirectCost         float64 `json:"direct_cost"`
	OCMCost            float64 `json:"ocm_cost"`
	CPCost             float64 `json:"cp_cost"`
	SubtotalWithMarkup float64 `json:"subtotal_with_markup"`
	VATCost            float64 `json:"vat_cost"`
	TotalUnitCost      float64 `json:"total_unit_cost"`
	TotalAmount        float64 `json:"total_amount"`
}

// CostLine is one priced BOQ line inside a cost estimate. It is owned
// exclusively by its estimate: the BOQ quantity and the rate inputs are
// copied at creation time, never referenced, so later BOQ or master-data
// edits cannot retroactively change an existing estimate.
type CostLine struct {
	ID             uuid.UUID       `json:"id"`
	EstimateID     uuid.UUID       `json:"estimate_id"`
	PayItemNumber  string          `json:"pay_item_number"`
	Description    string          `json:"description"`
	Unit           string          `json:"unit"`
	Part           string          `json:"part"`
	Quantity       float64         `json:"quantity"`
	LaborItems     []LaborItem     `json:"labor_items"`
	EquipmentItems []EquipmentItem `json:"equipment_items"`
	MaterialItems  []MaterialItem  `json:"material_items"`
	Breakdown      CostBreakdown   `json:"breakdown"`
	Position       int             `json:"position"`
}

// CostSummary is the rollup across all lines of an estimate.
type CostSummary struct {
	TotalDirectCost    float64 `json:"total_direct_cost"`
	TotalOCM           float64 `json:"total_ocm"`
	TotalCP            float64 `json:"total_cp"`
	SubtotalWithMarkup float64 `json:"subtotal_with_markup"`
	TotalVAT           float64 `json:"total_vat"`
	GrandTotal         float64 `json:"grand_total"`
	RateItemsCount     int     `json:"rate_items_count"`
}
