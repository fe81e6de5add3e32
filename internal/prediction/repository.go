package prediction

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kinexbt/coin-yaps/internal/database"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// PredictionRepository defines the interface for prediction data operations
type PredictionRepository interface {
	Upsert(ctx context.Context, prediction *models.Prediction) error
	FindByToken(ctx context.Context, tokenID uint) ([]models.Prediction, error)
	UpdatePercentage(ctx context.Context, tokenID uint, priceRange models.PriceRange, percentage int) error
	Transaction(ctx context.Context, fn func(repo PredictionRepository) error) error
}

// predictionRepository implements PredictionRepository interface
type predictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new prediction repository instance
func NewPredictionRepository(db *gorm.DB) PredictionRepository {
	return &predictionRepository{db: db}
}

// Upsert stores the caller's vote keyed on (user_id, token_id). An existing
// row only has its price range replaced. prediction is reloaded from the store.
func (r *predictionRepository) Upsert(ctx context.Context, prediction *models.Prediction) error {
	if prediction == nil {
		return errors.New("prediction cannot be nil")
	}
	db := r.db.WithContext(ctx)

	row := models.Prediction{
		UserID:     prediction.UserID,
		TokenID:    prediction.TokenID,
		PriceRange: prediction.PriceRange,
	}
	err := db.Omit("User").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"price_range", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return database.Translate(err)
	}

	var stored models.Prediction
	err = db.Where("user_id = ? AND token_id = ?", prediction.UserID, prediction.TokenID).First(&stored).Error
	if err != nil {
		return database.Translate(err)
	}
	*prediction = stored
	return nil
}

// FindByToken returns every vote on a token with its voter, oldest row first
func (r *predictionRepository) FindByToken(ctx context.Context, tokenID uint) ([]models.Prediction, error) {
	var rows []models.Prediction
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("token_id = ?", tokenID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, database.Translate(err)
	}
	return rows, nil
}

// UpdatePercentage writes percentage onto every row of one bucket
func (r *predictionRepository) UpdatePercentage(ctx context.Context, tokenID uint, priceRange models.PriceRange, percentage int) error {
	err := r.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("token_id = ? AND price_range = ?", tokenID, priceRange).
		Update("percentage", percentage).Error
	if err != nil {
		return database.Translate(err)
	}
	return nil
}

// Transaction runs fn with a repository bound to one store transaction
func (r *predictionRepository) Transaction(ctx context.Context, fn func(repo PredictionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&predictionRepository{db: tx})
	})
}
