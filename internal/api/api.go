package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"stock-insight/internal/models"
	"stock-insight/internal/predict"
	"stock-insight/internal/services/auth"
	"stock-insight/internal/services/export"
	"stock-insight/internal/services/marketdata"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type APIHandler struct {
	db     *gorm.DB
	auth   *auth.Service
	market *marketdata.Service
	sink   predict.Sink
	runner predict.Runner

	// 同一时间只允许一个预测任务
	runMu sync.Mutex
	hub   *progressHub
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, authSvc *auth.Service, market *marketdata.Service, runner predict.Runner) *APIHandler {
	handler := &APIHandler{
		db:     db,
		auth:   authSvc,
		market: market,
		sink:   predict.NewGormSink(db),
		runner: runner,
		hub:    newProgressHub(),
	}

	// Auth routes
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", handler.Register)
		authGroup.POST("/login", handler.Login)
		authGroup.GET("/me", authSvc.Middleware(), handler.GetCurrentUser)
	}

	// Stock indicator data
	stocks := r.Group("/stocks")
	{
		stocks.GET("", handler.ListStocks)
		stocks.GET("/data", handler.ListStockData)
		stocks.POST("/data", authSvc.Middleware(), handler.UpsertStockData)
		stocks.DELETE("/data", authSvc.Middleware(), handler.DeleteStockData)
		stocks.GET("/export", handler.ExportStockData)
	}

	// Third-party market data proxies
	marketGroup := r.Group("/market")
	{
		marketGroup.GET("/index", handler.ProxySearchIndex)
		marketGroup.GET("/macro", handler.ProxyMacroStats)
	}

	// Prediction routes
	predictGroup := r.Group("/predict")
	{
		predictGroup.POST("/run", authSvc.Middleware(), auth.RequireRole("admin"), handler.RunPrediction)
		predictGroup.GET("/price/:stockid", handler.GetPricePredictions)
		predictGroup.GET("/factors/:stockid", handler.GetFactorPredictions)
		predictGroup.GET("/runs", handler.ListPredictRuns)
		predictGroup.GET("/export", handler.ExportPredictions)
	}

	return handler
}

// Register: POST /api/v1/auth/register
func (h *APIHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	user := models.User{Username: req.Username, PasswordHash: hash, Role: "user"}
	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

// Login: POST /api/v1/auth/login
func (h *APIHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !h.auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := h.auth.IssueToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (h *APIHandler) GetCurrentUser(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	var user models.User
	if err := h.db.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ListStocks: GET /api/v1/stocks - distinct stock ids in the dataset
func (h *APIHandler) ListStocks(c *gin.Context) {
	var ids []string
	if err := h.db.Model(&models.StockIndicator{}).
		Distinct("stock_id").
		Order("stock_id").
		Pluck("stock_id", &ids).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks": ids, "count": len(ids)})
}

// ListStockData: GET /api/v1/stocks/data?stockid=&limit=&offset=
func (h *APIHandler) ListStockData(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	query := h.db.Model(&models.StockIndicator{}).Order("stock_id, date")
	if stockID := c.Query("stockid"); stockID != "" {
		query = query.Where("stock_id = ?", stockID)
	}

	var total int64
	query.Count(&total)

	var rows []models.StockIndicator
	if err := query.Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

// UpsertStockData: POST /api/v1/stocks/data
// Body: array of indicator rows; rows are upserted by (stockid, date)
func (h *APIHandler) UpsertStockData(c *gin.Context) {
	var rows []models.StockIndicator
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows provided"})
		return
	}
	for i := range rows {
		if rows[i].StockID == "" || rows[i].Date == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every row needs stockid and date"})
			return
		}
	}

	if err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_id"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": len(rows)})
}

// DeleteStockData: DELETE /api/v1/stocks/data?stockid=
func (h *APIHandler) DeleteStockData(c *gin.Context) {
	stockID := c.Query("stockid")
	if stockID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stockid is required"})
		return
	}

	res := h.db.Where("stock_id = ?", stockID).Delete(&models.StockIndicator{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": res.RowsAffected})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportStockData: GET /api/v1/stocks/export - full dataset as xlsx
func (h *APIHandler) ExportStockData(c *gin.Context) {
	rows, err := h.sink.LoadFullDataset()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := export.StockIndicators(rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="stock_indicators.xlsx"`)
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

// ProxySearchIndex: GET /api/v1/market/index?keyword=&start=&end=
func (h *APIHandler) ProxySearchIndex(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}

	series, err := h.market.GetSearchIndex(keyword, c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, series)
}

// ProxyMacroStats: GET /api/v1/market/macro?region=
func (h *APIHandler) ProxyMacroStats(c *gin.Context) {
	region := c.DefaultQuery("region", "national")

	stats, err := h.market.GetMacroStats(region)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RunPrediction: POST /api/v1/predict/run
// Runs the full pipeline synchronously; only one run may be active at a time.
func (h *APIHandler) RunPrediction(c *gin.Context) {
	if !h.runMu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a prediction run is already in progress"})
		return
	}
	defer h.runMu.Unlock()

	run := models.PredictRun{Status: "running", StartedAt: time.Now()}
	if err := h.db.Create(&run).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pipeline := predict.NewPipeline(h.sink, h.runner).WithObserver(func(stage string) {
		h.hub.broadcast(runProgress{RunID: run.ID, Stage: stage, Time: time.Now().Format(time.RFC3339)})
	})

	summary, err := pipeline.Run(c.Request.Context())

	finished := time.Now()
	run.FinishedAt = &finished
	run.DurationMs = finished.Sub(run.StartedAt).Milliseconds()

	if err != nil {
		run.Status = "failed"
		resp := gin.H{"run_id": run.ID}
		status := http.StatusInternalServerError

		if pe := predict.AsError(err); pe != nil {
			run.ErrorCode = string(pe.Code)
			run.ErrorMessage = boundText(pe.Error(), 4000)
			status = statusForCode(pe.Code)
			resp["code"] = pe.Code
			resp["error"] = pe.Message
			if pe.Detail != "" {
				resp["detail"] = pe.Detail
			}
			if pe.EntryIndex > 0 {
				resp["entry_index"] = pe.EntryIndex
			}
		} else {
			run.ErrorCode = "Internal"
			run.ErrorMessage = boundText(err.Error(), 4000)
			resp["error"] = err.Error()
		}
		h.db.Save(&run)
		c.JSON(status, resp)
		return
	}

	run.Status = "done"
	run.PriceCount = summary.PriceCount
	run.FactorCount = summary.FactorCount
	h.db.Save(&run)

	c.JSON(http.StatusOK, gin.H{
		"run_id":         run.ID,
		"price_count":    summary.PriceCount,
		"price_samples":  summary.PriceSamples,
		"factor_count":   summary.FactorCount,
		"factor_samples": summary.FactorSamples,
	})
}

// statusForCode maps each pipeline error kind to a distinct client status so
// callers can tell "nothing to predict" from "model broke" from "storage broke"
func statusForCode(code predict.ErrorCode) int {
	switch code {
	case predict.CodeEmptyDataset:
		return http.StatusBadRequest
	case predict.CodeProcessExecutionFailed:
		return http.StatusBadGateway
	case predict.CodeProcessTimeout:
		return http.StatusGatewayTimeout
	case predict.CodeUnrecoverableOutput:
		return http.StatusBadGateway
	case predict.CodeMalformedPredictionResult:
		return http.StatusUnprocessableEntity
	case predict.CodePersistenceFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func boundText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// 不在多字节字符中间截断
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// GetPricePredictions: GET /api/v1/predict/price/:stockid
func (h *APIHandler) GetPricePredictions(c *gin.Context) {
	rows, err := h.sink.ReadPredictionsByStock(c.Param("stockid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": rows, "count": len(rows)})
}

// GetFactorPredictions: GET /api/v1/predict/factors/:stockid
func (h *APIHandler) GetFactorPredictions(c *gin.Context) {
	rows, err := h.sink.ReadFactorPredictionsByStock(c.Param("stockid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": rows, "count": len(rows)})
}

// ListPredictRuns: GET /api/v1/predict/runs - most recent runs first
func (h *APIHandler) ListPredictRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var runs []models.PredictRun
	if err := h.db.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// ExportPredictions: GET /api/v1/predict/export - both tables as xlsx
func (h *APIHandler) ExportPredictions(c *gin.Context) {
	var prices []models.PricePrediction
	if err := h.db.Order("stock_id, date").Find(&prices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var factors []models.FactorPrediction
	if err := h.db.Order("stock_id, date").Find(&factors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := export.Predictions(prices, factors)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="predictions.xlsx"`)
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
