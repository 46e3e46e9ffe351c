// Package orgscope provides organization-level scoping for GORM queries.
//
// Every org-owned table carries an org_id column; repositories apply these
// scopes so cross-organization reads and writes cannot slip through a
// hand-written WHERE clause. Tables without an org_id column (FX rates,
// tenant metric values) must not use them.
package orgscope

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrOrgIDRequired is returned when a query is scoped with an empty org ID.
var ErrOrgIDRequired = errors.New("org_id is required")

// ErrInvalidOrgID is returned when org_id format is invalid
var ErrInvalidOrgID = errors.New("invalid org_id format")

// OrgScope applies org filtering to GORM queries
func OrgScope(orgID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if orgID == uuid.Nil {
			_ = db.AddError(ErrOrgIDRequired)
			return db
		}
		return db.Where("org_id = ?", orgID)
	}
}

// OrgScopeString applies org filtering using a string org ID.
func OrgScopeString(orgID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if orgID == "" {
			_ = db.AddError(ErrOrgIDRequired)
			return db
		}
		if _, err := uuid.Parse(orgID); err != nil {
			_ = db.AddError(ErrInvalidOrgID)
			return db
		}
		return db.Where("org_id = ?", orgID)
	}
}
