package persistence

import (
	"slices"
	"strings"

	"gorm.io/gorm/clause"
)

// Sortable columns per listing. Anything else in a filter's OrderBy falls
// back to created_at so caller input never reaches the ORDER BY clause.
var (
	touristSortColumns  = []string{"created_at", "updated_at", "full_name", "valid_until", "kyc_status", "unresolved_work", "panic_count"}
	incidentSortColumns = []string{"created_at", "updated_at", "occurred_at", "severity", "status"}
)

const defaultSortColumn = "created_at"

// orderBy builds a quoted ORDER BY column. Direction is DESC unless dir is
// "asc" in any case.
func orderBy(column, dir string, allowed []string) clause.OrderByColumn {
	column = strings.TrimSpace(column)
	if !slices.Contains(allowed, column) {
		column = defaultSortColumn
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   !strings.EqualFold(strings.TrimSpace(dir), "asc"),
	}
}
