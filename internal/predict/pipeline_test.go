package predict

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stock-insight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink is an in-memory Sink that can fail the Nth write of either kind
type fakeSink struct {
	dataset []models.StockIndicator

	prices  []models.PricePrediction
	factors []models.FactorPrediction

	failPriceWrite  int // 1-based ordinal of the price write that fails, 0 = never
	failFactorWrite int
	priceWrites     int
	factorWrites    int

	writeLog []string
}

func (s *fakeSink) LoadFullDataset() ([]models.StockIndicator, error) {
	return s.dataset, nil
}

func (s *fakeSink) WritePricePrediction(p *models.PricePrediction) error {
	s.priceWrites++
	if s.failPriceWrite != 0 && s.priceWrites == s.failPriceWrite {
		return errors.New("duplicate entry for key")
	}
	s.prices = append(s.prices, *p)
	s.writeLog = append(s.writeLog, "price:"+p.StockID)
	return nil
}

func (s *fakeSink) WriteFactorPrediction(f *models.FactorPrediction) error {
	s.factorWrites++
	if s.failFactorWrite != 0 && s.factorWrites == s.failFactorWrite {
		return errors.New("duplicate entry for key")
	}
	s.factors = append(s.factors, *f)
	s.writeLog = append(s.writeLog, "factor:"+f.StockID)
	return nil
}

func (s *fakeSink) ReadPredictionsByStock(stockID string) ([]models.PricePrediction, error) {
	return s.prices, nil
}

func (s *fakeSink) ReadFactorPredictionsByStock(stockID string) ([]models.FactorPrediction, error) {
	return s.factors, nil
}

// fakeRunner returns a canned outcome and records the dataset it was fed
type fakeRunner struct {
	outcome *Outcome
	err     error

	calls      int
	gotDataset []byte
}

func (r *fakeRunner) Run(ctx context.Context, dataset []byte) (*Outcome, error) {
	r.calls++
	r.gotDataset = dataset
	if r.err != nil {
		return nil, r.err
	}
	return r.outcome, nil
}

func someDataset(n int) []models.StockIndicator {
	rows := make([]models.StockIndicator, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.StockIndicator{
			StockID:    fmt.Sprintf("60000%d", i),
			Date:       "2024-06-30",
			TTM:        1.5,
			PE:         10,
			PB:         2,
			PCF:        8,
			ClosePrice: 12.3,
		})
	}
	return rows
}

func modelStdout(nPrices, nFactors int) string {
	out := `{"final_predictions":[`
	for i := 0; i < nPrices; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"stockid":%d,"date":"2024-06-30","label":%d.5}`, 600000+i, 10+i)
	}
	out += `],"factor_predictions":[`
	for i := 0; i < nFactors; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"stockid":%d,"date":"2024-06-30","y0":1,"y1":2,"y2":3,"y3":4}`, 600000+i)
	}
	return out + `]}`
}

func TestPipeline_SuccessfulRun(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(2)}
	runner := &fakeRunner{outcome: &Outcome{
		ExitCode: 0,
		Stdout:   "0.91\n0.88\n" + modelStdout(3, 2) + "\n",
	}}

	summary, err := NewPipeline(sink, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.PriceCount)
	assert.Equal(t, 2, summary.FactorCount)
	assert.Len(t, sink.prices, 3)
	assert.Len(t, sink.factors, 2)

	// the runner is fed the full serialized dataset
	assert.Contains(t, string(runner.gotDataset), `"stockid":"600000"`)
	assert.Contains(t, string(runner.gotDataset), `"marketaslary"`)

	// y0..y3 land in the named factor columns
	assert.Equal(t, 1.0, sink.factors[0].TTM)
	assert.Equal(t, 2.0, sink.factors[0].PE)
	assert.Equal(t, 3.0, sink.factors[0].PB)
	assert.Equal(t, 4.0, sink.factors[0].PCF)
}

func TestPipeline_PricesPersistBeforeFactors(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(2, 2)}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.writeLog, 4)
	assert.Equal(t, "price:600000", sink.writeLog[0])
	assert.Equal(t, "price:600001", sink.writeLog[1])
	assert.Equal(t, "factor:600000", sink.writeLog[2])
	assert.Equal(t, "factor:600001", sink.writeLog[3])
}

func TestPipeline_EmptyDatasetDoesNotSpawn(t *testing.T) {
	sink := &fakeSink{}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(1, 1)}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeEmptyDataset, pe.Code)
	assert.Zero(t, runner.calls)
}

func TestPipeline_NonzeroExitShortCircuitsParsing(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{
		ExitCode: 1,
		Stdout:   "this is not parsed {{{",
		Stderr:   "boom",
	}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeProcessExecutionFailed, pe.Code)
	assert.Equal(t, "boom", pe.Detail)
	assert.Zero(t, sink.priceWrites)
}

func TestPipeline_UnrecoverableOutput(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: "no payload here"}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeUnrecoverableOutput, pe.Code)
}

func TestPipeline_MissingSequenceKey(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: `{"final_predictions":[]}`}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeMalformedPredictionResult, pe.Code)
}

func TestPipeline_PartialPersistenceFailure(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1), failPriceWrite: 3}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(5, 4)}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodePersistenceFailed, pe.Code)
	assert.Equal(t, 3, pe.EntryIndex)

	// the first two rows stay committed, factors are never attempted
	assert.Len(t, sink.prices, 2)
	assert.Zero(t, sink.factorWrites)
}

func TestPipeline_FactorPersistenceFailure(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1), failFactorWrite: 2}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(2, 3)}}

	_, err := NewPipeline(sink, runner).Run(context.Background())
	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodePersistenceFailed, pe.Code)
	assert.Equal(t, 2, pe.EntryIndex)
	assert.Len(t, sink.prices, 2)
	assert.Len(t, sink.factors, 1)
}

func TestPipeline_SampleTruncation(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(8, 0)}}

	summary, err := NewPipeline(sink, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.PriceCount)
	require.Len(t, summary.PriceSamples, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("%d", 600000+i), summary.PriceSamples[i].StockID)
	}
	assert.Empty(t, summary.FactorSamples)
}

func TestPipeline_SkipsEntriesWithoutKeys(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: `{
		"final_predictions":[
			{"stockid":600000,"date":"2024-06-30","label":10.5},
			{"date":"2024-06-30","label":11.5},
			{"stockid":600002,"label":12.5},
			{"stockid":600003,"date":"2024-06-30","label":13.5}
		],
		"factor_predictions":[]
	}`}}

	summary, err := NewPipeline(sink, runner).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PriceCount)
	assert.Len(t, sink.prices, 2)
	assert.Equal(t, "600000", sink.prices[0].StockID)
	assert.Equal(t, "600003", sink.prices[1].StockID)
}

func TestPipeline_CommitTimestampIsAttached(t *testing.T) {
	fixed := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(1, 1)}}

	p := NewPipeline(sink, runner)
	p.now = func() time.Time { return fixed }

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, sink.prices[0].CreatedAt)
	assert.Equal(t, fixed, sink.factors[0].CreatedAt)
}

func TestPipeline_ObserverSeesStagesInOrder(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{Stdout: modelStdout(1, 1)}}

	var stages []string
	p := NewPipeline(sink, runner).WithObserver(func(s string) { stages = append(stages, s) })

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		StageDatasetLoaded,
		StageProcessRunning,
		StageProcessComplete,
		StageOutputParsed,
		StageValidated,
		StagePersisting,
		StageDone,
	}, stages)
}

func TestPipeline_ObserverSeesFailureCode(t *testing.T) {
	sink := &fakeSink{dataset: someDataset(1)}
	runner := &fakeRunner{outcome: &Outcome{ExitCode: 2, Stderr: "traceback"}}

	var stages []string
	p := NewPipeline(sink, runner).WithObserver(func(s string) { stages = append(stages, s) })

	_, err := p.Run(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, stages)
	assert.Equal(t, StageFailedPrefix+string(CodeProcessExecutionFailed), stages[len(stages)-1])
}
