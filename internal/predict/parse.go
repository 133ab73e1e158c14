package predict

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Top-level keys of the model's JSON result
const (
	keyPricePredictions  = "final_predictions"
	keyFactorPredictions = "factor_predictions"
)

// maxExcerpt bounds how much raw model output is echoed in diagnostics
const maxExcerpt = 512

// stockID accepts both forms the model can echo back: the string ids the
// dataset carries (including leading-zero Shenzhen codes like "000001",
// which are not valid JSON number literals) and the bare numbers pandas
// emits for numeric id columns.
type stockID string

func (s *stockID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = stockID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = stockID(n.String())
	return nil
}

func (s stockID) String() string { return string(s) }

// PriceEntry is a raw price prediction row as emitted by the model
type PriceEntry struct {
	StockID stockID `json:"stockid"`
	Date    string  `json:"date"`
	Label   float64 `json:"label"`
}

// FactorEntry is a raw factor prediction row; y0..y3 map positionally to
// TTM, PE, PB, PCF
type FactorEntry struct {
	StockID stockID `json:"stockid"`
	Date    string  `json:"date"`
	Y0      float64 `json:"y0"`
	Y1      float64 `json:"y1"`
	Y2      float64 `json:"y2"`
	Y3      float64 `json:"y3"`
}

// decodeModelOutput recovers the JSON result object from the model's stdout.
// The model prints training diagnostics (r2 scores etc.) around the payload,
// so when a direct decode fails we retry on the substring between the first
// '{' and the last '}'.
func decodeModelOutput(stdout string) (map[string]json.RawMessage, *Error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stdout), &obj); err == nil {
		return obj, nil
	}

	start := strings.Index(stdout, "{")
	end := strings.LastIndex(stdout, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &Error{
			Code:    CodeUnrecoverableOutput,
			Message: "no JSON object found in model output",
			Detail:  truncate(stdout, maxExcerpt),
		}
	}

	if err := json.Unmarshal([]byte(stdout[start:end+1]), &obj); err != nil {
		return nil, &Error{
			Code:    CodeUnrecoverableOutput,
			Message: "embedded JSON object failed to decode",
			Detail:  truncate(stdout, maxExcerpt),
			Err:     err,
		}
	}
	return obj, nil
}

// splitResult checks that the decoded object carries both prediction
// sequences and types them. Element-level validation (empty ids etc.) is
// left to the persistence loop.
func splitResult(obj map[string]json.RawMessage) ([]PriceEntry, []FactorEntry, *Error) {
	rawPrices, ok := obj[keyPricePredictions]
	if !ok {
		return nil, nil, &Error{
			Code:    CodeMalformedPredictionResult,
			Message: fmt.Sprintf("model result is missing %q", keyPricePredictions),
		}
	}
	rawFactors, ok := obj[keyFactorPredictions]
	if !ok {
		return nil, nil, &Error{
			Code:    CodeMalformedPredictionResult,
			Message: fmt.Sprintf("model result is missing %q", keyFactorPredictions),
		}
	}

	var prices []PriceEntry
	if err := json.Unmarshal(rawPrices, &prices); err != nil {
		return nil, nil, &Error{
			Code:    CodeMalformedPredictionResult,
			Message: fmt.Sprintf("%q is not a sequence of price predictions", keyPricePredictions),
			Err:     err,
		}
	}
	var factors []FactorEntry
	if err := json.Unmarshal(rawFactors, &factors); err != nil {
		return nil, nil, &Error{
			Code:    CodeMalformedPredictionResult,
			Message: fmt.Sprintf("%q is not a sequence of factor predictions", keyFactorPredictions),
			Err:     err,
		}
	}
	return prices, factors, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// 回退到完整字符的边界，模型诊断多为中文
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}
