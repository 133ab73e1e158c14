package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-insight/internal/models"
)

// Stage names reported to the progress observer, in run order
const (
	StageDatasetLoaded   = "dataset_loaded"
	StageProcessRunning  = "process_running"
	StageProcessComplete = "process_complete"
	StageOutputParsed    = "output_parsed"
	StageValidated       = "validated"
	StagePersisting      = "persisting"
	StageDone            = "done"
	StageFailedPrefix    = "failed:" // followed by the error code
)

// sampleLimit caps how many persisted records the summary echoes back
const sampleLimit = 5

// Summary is the caller-facing result of a successful run
type Summary struct {
	PriceCount    int                       `json:"price_count"`
	PriceSamples  []models.PricePrediction  `json:"price_samples"`
	FactorCount   int                       `json:"factor_count"`
	FactorSamples []models.FactorPrediction `json:"factor_samples"`
}

// Pipeline drives one prediction run: load dataset, run the model process,
// recover its JSON output, persist both prediction kinds, summarize.
// A Pipeline holds no run state and may be reused; each Run is independent.
type Pipeline struct {
	sink     Sink
	runner   Runner
	now      func() time.Time
	observer func(stage string)
}

func NewPipeline(sink Sink, runner Runner) *Pipeline {
	return &Pipeline{
		sink:   sink,
		runner: runner,
		now:    time.Now,
	}
}

// WithObserver registers a callback invoked once per stage transition,
// including the terminal "done" / "failed:<code>" stage
func (p *Pipeline) WithObserver(fn func(stage string)) *Pipeline {
	p.observer = fn
	return p
}

func (p *Pipeline) emit(stage string) {
	if p.observer != nil {
		p.observer(stage)
	}
}

func (p *Pipeline) fail(e *Error) error {
	p.emit(StageFailedPrefix + string(e.Code))
	return e
}

// Run executes one prediction run to its single terminal outcome. Price
// predictions persist strictly before factor predictions; a write failure
// aborts the rest of the batch and leaves earlier rows committed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	dataset, err := p.sink.LoadFullDataset()
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if len(dataset) == 0 {
		// 数据集为空时不启动模型进程
		return nil, p.fail(&Error{
			Code:    CodeEmptyDataset,
			Message: "no stock indicator rows to predict on",
		})
	}
	p.emit(StageDatasetLoaded)

	payload, err := json.Marshal(dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize dataset: %w", err)
	}

	p.emit(StageProcessRunning)
	outcome, err := p.runner.Run(ctx, payload)
	if err != nil {
		if pe := AsError(err); pe != nil {
			return nil, p.fail(pe)
		}
		return nil, p.fail(&Error{
			Code:    CodeProcessExecutionFailed,
			Message: "model process could not be run",
			Err:     err,
		})
	}
	p.emit(StageProcessComplete)

	if outcome.ExitCode != 0 {
		// stdout is not parsed on a failed exit
		return nil, p.fail(&Error{
			Code:    CodeProcessExecutionFailed,
			Message: fmt.Sprintf("model process exited with code %d", outcome.ExitCode),
			Detail:  outcome.Stderr,
		})
	}

	obj, perr := decodeModelOutput(outcome.Stdout)
	if perr != nil {
		return nil, p.fail(perr)
	}
	p.emit(StageOutputParsed)

	prices, factors, perr := splitResult(obj)
	if perr != nil {
		return nil, p.fail(perr)
	}
	p.emit(StageValidated)

	p.emit(StagePersisting)
	now := p.now()
	summary := &Summary{
		PriceSamples:  []models.PricePrediction{},
		FactorSamples: []models.FactorPrediction{},
	}

	for i, entry := range prices {
		stockID := entry.StockID.String()
		if stockID == "" || entry.Date == "" {
			// 缺少主键的记录不入库
			continue
		}
		rec := models.PricePrediction{
			StockID:        stockID,
			Date:           entry.Date,
			PredictedPrice: entry.Label,
			CreatedAt:      now,
		}
		if err := p.sink.WritePricePrediction(&rec); err != nil {
			return nil, p.fail(&Error{
				Code:       CodePersistenceFailed,
				Message:    fmt.Sprintf("failed to persist price prediction %d of %d (stock %s)", i+1, len(prices), stockID),
				EntryIndex: i + 1,
				Err:        err,
			})
		}
		summary.PriceCount++
		if len(summary.PriceSamples) < sampleLimit {
			summary.PriceSamples = append(summary.PriceSamples, rec)
		}
	}

	for i, entry := range factors {
		stockID := entry.StockID.String()
		if stockID == "" || entry.Date == "" {
			continue
		}
		rec := models.FactorPrediction{
			StockID:   stockID,
			Date:      entry.Date,
			TTM:       entry.Y0,
			PE:        entry.Y1,
			PB:        entry.Y2,
			PCF:       entry.Y3,
			CreatedAt: now,
		}
		if err := p.sink.WriteFactorPrediction(&rec); err != nil {
			return nil, p.fail(&Error{
				Code:       CodePersistenceFailed,
				Message:    fmt.Sprintf("failed to persist factor prediction %d of %d (stock %s)", i+1, len(factors), stockID),
				EntryIndex: i + 1,
				Err:        err,
			})
		}
		summary.FactorCount++
		if len(summary.FactorSamples) < sampleLimit {
			summary.FactorSamples = append(summary.FactorSamples, rec)
		}
	}

	p.emit(StageDone)
	return summary, nil
}
