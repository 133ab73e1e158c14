package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered user of the platform
type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Username     string         `json:"username" gorm:"unique;not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	Role         string         `json:"role" gorm:"default:'user'"` // user, admin
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// StockIndicator is one row of financial indicators for a (stock, date) pair.
// JSON field names must stay exactly as below: the external model reads the
// serialized dataset from stdin and selects its feature columns by these names.
type StockIndicator struct {
	ID      uint   `json:"-" gorm:"primaryKey"`
	StockID string `json:"stockid" gorm:"column:stock_id;index:idx_stock_date,unique;not null"`
	Date    string `json:"date" gorm:"index:idx_stock_date,unique;not null"`

	// 估值因子
	TTM float64 `json:"TTM" gorm:"column:ttm"`
	PE  float64 `json:"PE" gorm:"column:pe"`
	PB  float64 `json:"PB" gorm:"column:pb"`
	PCF float64 `json:"PCF" gorm:"column:pcf"`

	// 舆情指标
	BaiduIndex      float64 `json:"baiduindex" gorm:"column:baidu_index"`
	WeiboCnsenti    float64 `json:"weibo_cnsenti" gorm:"column:weibo_cnsenti"`
	WeiboDictionary float64 `json:"weibo_dictionary" gorm:"column:weibo_dictionary"`

	// 宏观指标
	MarketGDP        float64 `json:"marketGDP" gorm:"column:market_gdp"`
	MarketPopulation float64 `json:"marketpopulation" gorm:"column:market_population"`
	MarketSalary     float64 `json:"marketaslary" gorm:"column:market_salary"` // JSON key keeps the upstream spelling

	// 财务与价格
	TotalAsset               float64 `json:"total_asset" gorm:"column:total_asset"`
	QuarterlyAssetGrowth     float64 `json:"quarterly_asset_growth" gorm:"column:quarterly_asset_growth"`
	CashFlowPerholdProcessed float64 `json:"cash_flow_perhold_processed" gorm:"column:cash_flow_perhold_processed"`
	RFR                      float64 `json:"rfr" gorm:"column:rfr"`
	SmoothAssetGrowth        float64 `json:"smooth_asset_growth" gorm:"column:smooth_asset_growth"`
	ClosePrice               float64 `json:"close_price" gorm:"column:close_price"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// PricePrediction stores a next-period close price forecast
type PricePrediction struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	StockID        string    `json:"stock_id" gorm:"index:idx_price_pred,unique;not null"`
	Date           string    `json:"date" gorm:"index:idx_price_pred,unique;not null"`
	PredictedPrice float64   `json:"predicted_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// FactorPrediction stores a forecast of the four valuation factors
type FactorPrediction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StockID   string    `json:"stock_id" gorm:"index:idx_factor_pred,unique;not null"`
	Date      string    `json:"date" gorm:"index:idx_factor_pred,unique;not null"`
	TTM       float64   `json:"TTM" gorm:"column:ttm"`
	PE        float64   `json:"PE" gorm:"column:pe"`
	PB        float64   `json:"PB" gorm:"column:pb"`
	PCF       float64   `json:"PCF" gorm:"column:pcf"`
	CreatedAt time.Time `json:"created_at"`
}

// PredictRun records one execution of the prediction pipeline for auditing
type PredictRun struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Status       string     `json:"status" gorm:"index;not null"` // running, done, failed
	ErrorCode    string     `json:"error_code"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	PriceCount   int        `json:"price_count"`
	FactorCount  int        `json:"factor_count"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	DurationMs   int64      `json:"duration_ms"`
}
