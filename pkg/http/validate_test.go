package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buildRequest struct {
	Family    string  `param:"family" validate:"required"`
	Timeframe string  `query:"tf" default:"5m" validate:"oneof=5m 1h 1d"`
	Accuracy  float64 `json:"test_accuracy" validate:"gte=0,lte=1"`
}

func validateBody(t *testing.T, method, target, body string) ([]ValidationError, *buildRequest) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("family")
	c.SetParamValues("short_5m")

	out := &buildRequest{}
	verr := ReadAndValidateRequest(c, out)
	if verr == nil {
		return nil, out
	}
	errs, ok := verr.([]ValidationError)
	require.True(t, ok, "%T", verr)
	return errs, out
}

func TestReadAndValidateRequest_Defaults(t *testing.T) {
	errs, req := validateBody(t, http.MethodPost, "/b", `{"test_accuracy":0.5}`)
	require.Empty(t, errs)
	assert.Equal(t, "short_5m", req.Family)
	assert.Equal(t, "5m", req.Timeframe)
	assert.Equal(t, 0.5, req.Accuracy)
}

func TestReadAndValidateRequest_FieldNames(t *testing.T) {
	errs, _ := validateBody(t, http.MethodGet, "/b?tf=3m", "")
	require.Len(t, errs, 1)
	assert.Equal(t, "tf", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "tf must be one of: 5m, 1h, 1d", errs[0].Message)
	assert.Equal(t, []string{"5m", "1h", "1d"}, errs[0].Params["options"])

	errs, _ = validateBody(t, http.MethodPost, "/b", `{"test_accuracy":1.5}`)
	require.Len(t, errs, 1)
	assert.Equal(t, "test_accuracy", errs[0].Field)
	assert.Equal(t, "ERR_LTE", errs[0].Code)
	assert.Equal(t, "test_accuracy must be at most 1", errs[0].Message)
	assert.Equal(t, "1", errs[0].Params["max"])
}

func TestReadAndValidateRequest_Malformed(t *testing.T) {
	errs, _ := validateBody(t, http.MethodPost, "/b", `{"test_accuracy":`)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)

	b, err := json.Marshal(errs[0])
	require.NoError(t, err)
	assert.NotContains(t, string(b), "field")
}
