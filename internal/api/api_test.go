package api

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"stock-insight/internal/predict"

	"github.com/stretchr/testify/assert"
)

func TestBoundText_StaysValidUTF8(t *testing.T) {
	s := strings.Repeat("错误诊断", 500)
	out := boundText(s, 4000)
	assert.LessOrEqual(t, len(out), 4000)
	assert.True(t, utf8.ValidString(out))

	assert.Equal(t, "short", boundText("short", 4000))
}

func TestStatusForCode_DistinctPerKind(t *testing.T) {
	cases := map[predict.ErrorCode]int{
		predict.CodeEmptyDataset:              http.StatusBadRequest,
		predict.CodeProcessExecutionFailed:    http.StatusBadGateway,
		predict.CodeProcessTimeout:            http.StatusGatewayTimeout,
		predict.CodeUnrecoverableOutput:       http.StatusBadGateway,
		predict.CodeMalformedPredictionResult: http.StatusUnprocessableEntity,
		predict.CodePersistenceFailed:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), string(code))
	}
}
