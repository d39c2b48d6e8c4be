package persistence

import (
	"context"
	"errors"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/claims"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormClaimRepository persists medical aid claims and their payment lines.
// Claims are never deleted, only saved in cleared/rejected state.
type GormClaimRepository struct {
	db *gorm.DB
}

// NewGormClaimRepository creates a new GormClaimRepository
func NewGormClaimRepository(db *gorm.DB) *GormClaimRepository {
	return &GormClaimRepository{db: db}
}

// Save upserts the claim and all of its payment lines in one transaction so a
// claim is never persisted with a partial payment list.
func (r *GormClaimRepository) Save(ctx context.Context, claim *claims.Claim) error {
	model, payments := models.ClaimModelFromDomain(claim)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(model).Error; err != nil {
			return err
		}
		for _, p := range payments {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the claim with its payments, or (nil, nil) if absent.
func (r *GormClaimRepository) Get(ctx context.Context, id string) (*claims.Claim, error) {
	var model models.ClaimModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	payments, err := r.paymentsFor(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(payments)
}

// All returns every claim with payments attached, newest created first.
func (r *GormClaimRepository) All(ctx context.Context) ([]*claims.Claim, error) {
	var rows []models.ClaimModel
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}

	var paymentRows []models.PaymentModel
	if err := r.db.WithContext(ctx).Order("paid_at asc").Find(&paymentRows).Error; err != nil {
		return nil, err
	}
	byClaim := make(map[string][]*models.PaymentModel, len(rows))
	for i := range paymentRows {
		byClaim[paymentRows[i].ClaimID] = append(byClaim[paymentRows[i].ClaimID], &paymentRows[i])
	}

	result := make([]*claims.Claim, 0, len(rows))
	for i := range rows {
		claim, err := rows[i].ToDomain(byClaim[rows[i].ID])
		if err != nil {
			return nil, err
		}
		result = append(result, claim)
	}
	return result, nil
}

// Clear empties the claims and payments tables.
func (r *GormClaimRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.PaymentModel{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.ClaimModel{}).Error
	})
}

func (r *GormClaimRepository) paymentsFor(ctx context.Context, claimID string) ([]*models.PaymentModel, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).Where("claim_id = ?", claimID).Order("paid_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*models.PaymentModel, 0, len(rows))
	for i := range rows {
		payments = append(payments, &rows[i])
	}
	return payments, nil
}
