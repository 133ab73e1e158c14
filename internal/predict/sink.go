package predict

import (
	"stock-insight/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sink is the storage collaborator of a prediction run.
//
// Prediction writes are idempotent upserts keyed on (stock_id, date), so
// re-running a dataset updates rows instead of duplicating them. A batch is
// per-record best-effort: rows written before a failing write stay committed.
type Sink interface {
	LoadFullDataset() ([]models.StockIndicator, error)
	WritePricePrediction(p *models.PricePrediction) error
	WriteFactorPrediction(f *models.FactorPrediction) error
	ReadPredictionsByStock(stockID string) ([]models.PricePrediction, error)
	ReadFactorPredictionsByStock(stockID string) ([]models.FactorPrediction, error)
}

type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) LoadFullDataset() ([]models.StockIndicator, error) {
	var rows []models.StockIndicator
	if err := s.db.Order("stock_id, date").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormSink) WritePricePrediction(p *models.PricePrediction) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"predicted_price", "created_at"}),
	}).Create(p).Error
}

func (s *GormSink) WriteFactorPrediction(f *models.FactorPrediction) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"ttm", "pe", "pb", "pcf", "created_at"}),
	}).Create(f).Error
}

func (s *GormSink) ReadPredictionsByStock(stockID string) ([]models.PricePrediction, error) {
	var rows []models.PricePrediction
	if err := s.db.Where("stock_id = ?", stockID).Order("date").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormSink) ReadFactorPredictionsByStock(stockID string) ([]models.FactorPrediction, error) {
	var rows []models.FactorPrediction
	if err := s.db.Where("stock_id = ?", stockID).Order("date").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
