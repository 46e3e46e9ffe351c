package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
	"github.com/rollup/backend/internal/infrastructure/persistence/orgscope"
)

// commitBatchSize bounds one INSERT statement during fact batch writes.
const commitBatchSize = 500

// GormRunCommitter implements RunCommitter using GORM. CommitCompleted
// supersedes prior facts for the batch's keys, writes the new batch and
// flips the run to completed in a single transaction, so a committed fact
// can never belong to a run that is not completed.
type GormRunCommitter struct {
	db *gorm.DB
}

// NewGormRunCommitter creates a new GormRunCommitter
func NewGormRunCommitter(db *gorm.DB) *GormRunCommitter {
	return &GormRunCommitter{db: db}
}

// SaveRun persists run state outside the commit path (start, failure).
func (c *GormRunCommitter) SaveRun(ctx context.Context, run *consolidation.ConsolRun) error {
	model := models.ConsolRunModelFromDomain(run)
	return c.db.WithContext(ctx).Save(model).Error
}

// CommitCompleted atomically writes the fact batch and the completed run.
// Prior facts for the same (org, unit, period, metric) keys are deleted
// first: a new run supersedes, never patches.
func (c *GormRunCommitter) CommitCompleted(ctx context.Context, run *consolidation.ConsolRun, facts []*consolidation.ConsolFact) error {
	if run.Status != consolidation.RunStatusCompleted {
		return shared.NewDomainError("INVALID_STATE", "Only completed runs can commit facts")
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fact := range facts {
			if err := tx.
				Scopes(orgscope.OrgScope(fact.OrgID)).
				Where("org_unit_id = ? AND period = ? AND metric = ?",
					fact.OrgUnitID, fact.Period, fact.Metric).
				Delete(&models.ConsolFactModel{}).Error; err != nil {
				return err
			}
		}

		if len(facts) > 0 {
			factModels := make([]*models.ConsolFactModel, len(facts))
			for i, fact := range facts {
				factModels[i] = models.ConsolFactModelFromDomain(fact)
			}
			if err := tx.CreateInBatches(factModels, commitBatchSize).Error; err != nil {
				return err
			}
		}

		// Flip the run to completed only if it is still running. A zero-row
		// update on an existing row means another writer (an operator cancel)
		// reached a terminal state first; the whole commit aborts.
		model := models.ConsolRunModelFromDomain(run)
		res := tx.Model(&models.ConsolRunModel{}).
			Where("id = ? AND status = ?", model.ID, string(consolidation.RunStatusRunning)).
			Select("*").
			Updates(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing int64
			if err := tx.Model(&models.ConsolRunModel{}).
				Where("id = ?", model.ID).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return consolidation.ErrRunStateChanged
			}
			return tx.Create(model).Error
		}
		return nil
	})
}

// Ensure GormRunCommitter implements RunCommitter
var _ consolidation.RunCommitter = (*GormRunCommitter)(nil)
