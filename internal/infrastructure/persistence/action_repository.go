package persistence

import (
	"context"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/sync"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormActionRepository persists the offline queue. The queue is saved as a
// snapshot after every state-changing operation so a restart never loses
// pending or failed actions; completed and cancelled actions are pruned at
// save time.
type GormActionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormActionRepository creates a new GormActionRepository
func NewGormActionRepository(db *gorm.DB, logger *zap.Logger) *GormActionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormActionRepository{db: db, logger: logger}
}

// SaveSnapshot replaces the queue table with the live queue contents in one
// transaction. Actions whose payload cannot be encoded are skipped and logged
// rather than failing the whole snapshot.
func (r *GormActionRepository) SaveSnapshot(ctx context.Context, actions []*sync.Action) error {
	rows := make([]*models.ActionModel, 0, len(actions))
	for _, a := range actions {
		if a.Status == sync.StatusCompleted || a.Status == sync.StatusCancelled {
			continue
		}
		model, err := models.ActionModelFromDomain(a)
		if err != nil {
			r.logger.Error("failed to encode queued action, skipping",
				zap.String("action_id", a.ID.String()),
				zap.String("action_type", string(a.Type)),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, model)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ActionModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(rows).Error
	})
}

// Load rehydrates the queue, oldest first. Rows with undecodable payloads are
// logged and dropped; a corrupt row must not wedge the whole queue.
func (r *GormActionRepository) Load(ctx context.Context) ([]*sync.Action, error) {
	var rows []models.ActionModel
	if err := r.db.WithContext(ctx).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	actions := make([]*sync.Action, 0, len(rows))
	for i := range rows {
		action, err := rows[i].ToDomain()
		if err != nil {
			r.logger.Error("failed to decode queued action, dropping",
				zap.String("action_id", rows[i].ID),
				zap.String("action_type", rows[i].Type),
				zap.Error(err),
			)
			continue
		}
		// An action claimed by a processing slot before a crash goes back
		// to the pending pool on reload.
		if action.Status == sync.StatusProcessing {
			action.Status = sync.StatusPending
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// Clear empties the queue table.
func (r *GormActionRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&models.ActionModel{}).Error
}
