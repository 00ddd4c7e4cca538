package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/repository"
	"FinFeat/internal/services/features"
	"FinFeat/internal/usecase"
	"FinFeat/pkg/cache"
	"FinFeat/pkg/metrics"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func waveCandles(symbol string, n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 5*math.Sin(float64(i)/3)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: symbol,
			Open:   c - 0.1, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		}
	}
	return out
}

type apiFixture struct {
	e      *echo.Echo
	runner *usecase.BuildRunner
	locks  *cache.MemoryCache
	outDir string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	candleDir, outDir := t.TempDir(), t.TempDir()
	files := repository.NewFileCandleStore(candleDir)
	for _, s := range []string{"BTCUSDT", "ETHUSDT"} {
		require.NoError(t, files.StoreCandles(context.Background(), domrepo.TF5m, waveCandles(s, 300)))
	}

	reg, err := features.DefaultRegistry()
	require.NoError(t, err)
	store := repository.NewFSArtifactStore(outDir, features.NumFeatures)
	rec := metrics.NewWithRegistry(prometheus.NewRegistry())
	pub := repository.NopPublisher{}

	builder := usecase.NewDatasetBuilder(files, reg, store, pub, rec, nil)
	locks := cache.NewMemoryCache()
	t.Cleanup(func() { _ = locks.Close() })
	runner := usecase.NewBuildRunner(builder, locks, []usecase.BuildConfig{{
		Family:      "test_5m",
		Type:        "lstm",
		Scheme:      "short_horizon",
		Timeframe:   domrepo.TF5m,
		Instruments: []string{"BTCUSDT", "ETHUSDT"},
		Candles:     300,
		Window:      20,
		NumFeatures: features.NumFeatures,
		LabelKind:   "fixed",
		Horizon:     1,
		Threshold:   0.002,
		TestRatio:   0.2,
		SplitSeed:   42,
	}}, time.Minute, nil)

	h := NewPipelineEchoHandler(nil,
		usecase.NewCandlesUseCase(files, reg, rec, nil),
		runner,
		usecase.NewModelRegistry(store, store, pub, rec, nil),
	)
	e := echo.New()
	h.RegisterRoutes(e)
	return &apiFixture{e: e, runner: runner, locks: locks, outDir: outDir}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *apiFixture) waitBuilds(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Shutdown(ctx))
}

func TestPipelineEcho_Schemes(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/schemes", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.SchemeInfo `json:"rows"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 4, list.Total)

	code, env = f.do(t, http.MethodGet, "/api/schemes/short_horizon", "")
	require.Equal(t, http.StatusOK, code)
	var info models.SchemeInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Len(t, info.Names, features.NumFeatures)

	code, _ = f.do(t, http.MethodGet, "/api/schemes/astrology", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPipelineEcho_Features(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/features",
		`{"symbol":"btcusdt","tf":"5m","scheme":"short_horizon","limit":250,"rows":3}`)
	require.Equal(t, http.StatusOK, code)
	var resp models.FeaturesResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "BTCUSDT", resp.Symbol)
	assert.Equal(t, 250, resp.Candles)
	require.Len(t, resp.Rows, 3)
	assert.Len(t, resp.Rows[0], features.NumFeatures)

	code, _ = f.do(t, http.MethodPost, "/api/features", `{"scheme":"short_horizon"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/features", `{"symbol":"BTCUSDT","tf":"3m"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPipelineEcho_Candles(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	from := t0.Format(time.RFC3339)
	to := t0.Add(time.Hour).Format(time.RFC3339)
	code, env := f.do(t, http.MethodGet, "/api/candles/ethusdt?tf=5m&from="+from+"&to="+to+"&limit=5", "")
	require.Equal(t, http.StatusOK, code)
	var res usecase.GetCandlesResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, "ETHUSDT", res.Symbol)

	code, _ = f.do(t, http.MethodGet, "/api/candles/ethusdt?from="+to+"&to="+from, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPipelineEcho_BuildAndFinalize(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/families/test_5m/build", "")
	require.Equal(t, http.StatusAccepted, code)
	var sub map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	require.NotEmpty(t, sub["run_id"])
	f.waitBuilds(t)

	code, env = f.do(t, http.MethodGet, "/api/families/test_5m/build", "")
	require.Equal(t, http.StatusOK, code)
	var st usecase.RunStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, usecase.RunSucceeded, st.State, st.Error)
	assert.Equal(t, sub["run_id"], st.RunID)

	code, env = f.do(t, http.MethodGet, "/api/families/test_5m/metadata", "")
	require.Equal(t, http.StatusOK, code)
	var md models.ModelMetadata
	require.NoError(t, json.Unmarshal(env.Data, &md))
	assert.Equal(t, 76, md.NumFeatures)
	assert.Equal(t, "test_5m_scaler.json", md.ScalerPath)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, md.TrainedOn)
	for _, name := range []string{"X_train.npy", "y_train.npy", "X_test.npy", "y_test.npy"} {
		assert.FileExists(t, filepath.Join(f.outDir, "test_5m", name))
	}

	require.NoError(t, os.WriteFile(filepath.Join(f.outDir, "test_5m.onnx"), make([]byte, 3072), 0o644))
	code, env = f.do(t, http.MethodPost, "/api/families/test_5m/finalize",
		`{"test_accuracy":0.58,"model_path":"test_5m.onnx"}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &md))
	assert.Equal(t, 0.58, md.TestAccuracy)
	assert.Equal(t, 3.0, md.ModelSizeKB)

	code, _ = f.do(t, http.MethodPost, "/api/families/test_5m/finalize", `{"test_accuracy":0.58}`)
	assert.Equal(t, http.StatusBadRequest, code)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(f.outDir), "outside.bin"), make([]byte, 64), 0o644))
	for _, p := range []string{"../outside.bin", filepath.Join(filepath.Dir(f.outDir), "outside.bin")} {
		body, err := json.Marshal(map[string]any{"test_accuracy": 0.6, "model_path": p})
		require.NoError(t, err)
		code, _ = f.do(t, http.MethodPost, "/api/families/test_5m/finalize", string(body))
		assert.Equal(t, http.StatusBadRequest, code, p)
	}
	code, env = f.do(t, http.MethodGet, "/api/families/test_5m/metadata", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &md))
	assert.Equal(t, 3.0, md.ModelSizeKB, "rejected paths leave metadata untouched")
}

func TestPipelineEcho_BuildRejections(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/families/nope/build", "")
	assert.Equal(t, http.StatusNotFound, code)

	got, err := f.locks.TryLock(context.Background(), "build:test_5m", "cli-run", time.Minute)
	require.NoError(t, err)
	require.True(t, got)

	code, _ = f.do(t, http.MethodPost, "/api/families/test_5m/build", "")
	assert.Equal(t, http.StatusConflict, code)

	// the limiter allows a burst of two per client
	code, _ = f.do(t, http.MethodPost, "/api/families/test_5m/build", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestPipelineEcho_MetadataNotFound(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodGet, "/api/families/test_5m/metadata", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/families/bad..name!/metadata", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/families/test_5m/build", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestToAppError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{usecase.ErrBuildInProgress, http.StatusConflict},
		{domrepo.ErrArtifactNotFound, http.StatusNotFound},
		{domrepo.ErrInvalidArtifactPath, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toAppError(tt.err).Status, tt.err.Error())
	}
}
