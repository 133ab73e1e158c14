package export

import (
	"fmt"

	"stock-insight/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

// StockIndicators builds an xlsx workbook from indicator rows, one column
// per dataset field in the order the model consumes them
func StockIndicators(rows []models.StockIndicator) (*excelize.File, error) {
	f := excelize.NewFile()

	headers := []string{
		"stockid", "date", "TTM", "PE", "PB", "PCF",
		"baiduindex", "weibo_cnsenti", "weibo_dictionary",
		"marketGDP", "marketpopulation", "marketaslary",
		"total_asset", "quarterly_asset_growth", "cash_flow_perhold_processed",
		"rfr", "smooth_asset_growth", "close_price",
	}
	if err := writeRow(f, 1, toCells(headers)); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cells := []interface{}{
			r.StockID, r.Date, r.TTM, r.PE, r.PB, r.PCF,
			r.BaiduIndex, r.WeiboCnsenti, r.WeiboDictionary,
			r.MarketGDP, r.MarketPopulation, r.MarketSalary,
			r.TotalAsset, r.QuarterlyAssetGrowth, r.CashFlowPerholdProcessed,
			r.RFR, r.SmoothAssetGrowth, r.ClosePrice,
		}
		if err := writeRow(f, i+2, cells); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Predictions builds an xlsx workbook with both prediction tables on
// separate sheets
func Predictions(prices []models.PricePrediction, factors []models.FactorPrediction) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(sheet, "PricePredictions"); err != nil {
		return nil, err
	}
	if err := writeRowOn(f, "PricePredictions", 1, toCells([]string{"stockid", "date", "predicted_price", "created_at"})); err != nil {
		return nil, err
	}
	for i, p := range prices {
		cells := []interface{}{p.StockID, p.Date, p.PredictedPrice, p.CreatedAt.Format("2006-01-02 15:04:05")}
		if err := writeRowOn(f, "PricePredictions", i+2, cells); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet("FactorPredictions"); err != nil {
		return nil, err
	}
	if err := writeRowOn(f, "FactorPredictions", 1, toCells([]string{"stockid", "date", "TTM", "PE", "PB", "PCF"})); err != nil {
		return nil, err
	}
	for i, fp := range factors {
		cells := []interface{}{fp.StockID, fp.Date, fp.TTM, fp.PE, fp.PB, fp.PCF}
		if err := writeRowOn(f, "FactorPredictions", i+2, cells); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeRow(f *excelize.File, row int, cells []interface{}) error {
	return writeRowOn(f, sheet, row, cells)
}

func writeRowOn(f *excelize.File, sheetName string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("bad cell coordinates: %w", err)
	}
	return f.SetSheetRow(sheetName, cell, &cells)
}

func toCells(headers []string) []interface{} {
	cells := make([]interface{}, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	return cells
}
