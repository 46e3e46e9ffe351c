package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// Common allowed sort fields for entities with base fields
// These are the common fields present in most entities

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// OrgUnitSortFields contains allowed sort fields for org units
var OrgUnitSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"code":       true,
	"name":       true,
	"active":     true,
}

// OrgUnitMemberSortFields contains allowed sort fields for memberships
var OrgUnitMemberSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"org_unit_id":   true,
	"tenant_id":     true,
	"percent_share": true,
	"start_date":    true,
	"end_date":      true,
}

// MetricDefinitionSortFields contains allowed sort fields for metric definitions
var MetricDefinitionSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"key":         true,
	"name":        true,
	"aggregation": true,
}

// FxRateSortFields contains allowed sort fields for FX rates
var FxRateSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"day":        true,
	"base":       true,
	"quote":      true,
	"rate":       true,
}

// EliminationRuleSortFields contains allowed sort fields for elimination rules
var EliminationRuleSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"rule_type":  true,
	"name":       true,
	"active":     true,
}

// AdjustmentSortFields contains allowed sort fields for adjustments
var AdjustmentSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"period":       true,
	"metric":       true,
	"version":      true,
	"published":    true,
	"published_at": true,
}

// FactSortFields contains allowed sort fields for consolidated facts
var FactSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"period":      true,
	"metric":      true,
	"org_unit_id": true,
	"value_base":  true,
	"run_id":      true,
}

// RunSortFields contains allowed sort fields for consolidation runs
var RunSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"period":       true,
	"status":       true,
	"started_at":   true,
	"completed_at": true,
}
