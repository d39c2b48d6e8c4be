package persistence

import (
	"context"
	"errors"

	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/domain/fx"
	"github.com/fredtinotenda3/vp-multicurrency-sub001/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRateRepository persists cached rates and the append-only rate history.
type GormRateRepository struct {
	db *gorm.DB
}

// NewGormRateRepository creates a new GormRateRepository
func NewGormRateRepository(db *gorm.DB) *GormRateRepository {
	return &GormRateRepository{db: db}
}

// Save upserts a cached rate by its (source, currency) id in one transaction.
func (r *GormRateRepository) Save(ctx context.Context, rate *fx.CachedRate) error {
	model := models.CachedRateModelFromDomain(rate)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Get returns the cached rate for the given id, or (nil, nil) if absent.
func (r *GormRateRepository) Get(ctx context.Context, id string) (*fx.CachedRate, error) {
	var model models.CachedRateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// All returns every cached rate, most recently accessed first.
func (r *GormRateRepository) All(ctx context.Context) ([]*fx.CachedRate, error) {
	var rows []models.CachedRateModel
	if err := r.db.WithContext(ctx).Order("last_accessed desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	rates := make([]*fx.CachedRate, 0, len(rows))
	for i := range rows {
		rates = append(rates, rows[i].ToDomain())
	}
	return rates, nil
}

// Delete removes a cached rate by id.
func (r *GormRateRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.CachedRateModel{}, "id = ?", id).Error
}

// Clear empties the rates table.
func (r *GormRateRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&models.CachedRateModel{}).Error
}

// AppendHistory appends one audit record; history is never updated in place.
func (r *GormRateRepository) AppendHistory(ctx context.Context, entry *fx.HistoryEntry) error {
	return r.db.WithContext(ctx).Create(models.RateHistoryModelFromDomain(entry)).Error
}

// History returns past rates matching the query, newest first. A pure read;
// no cursor state is retained between calls.
func (r *GormRateRepository) History(ctx context.Context, q fx.HistoryQuery) ([]fx.HistoryEntry, error) {
	tx := r.db.WithContext(ctx).Model(&models.RateHistoryModel{})
	if q.Source != "" {
		tx = tx.Where("source = ?", string(q.Source))
	}
	if q.Currency != "" {
		tx = tx.Where("currency = ?", string(q.Currency))
	}
	if !q.From.IsZero() {
		tx = tx.Where("recorded_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		tx = tx.Where("recorded_at <= ?", q.To)
	}
	tx = tx.Order("recorded_at desc")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []models.RateHistoryModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]fx.HistoryEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToDomain())
	}
	return entries, nil
}
