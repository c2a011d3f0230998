package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgetwin/config"
	"github.com/c360/edgetwin/ml"
	"github.com/c360/edgetwin/optimize"
	"github.com/c360/edgetwin/process"
	"github.com/c360/edgetwin/runtime"
	"github.com/c360/edgetwin/telemetry"
)

func testGateway(t *testing.T) (*Gateway, *runtime.Runtime) {
	t.Helper()
	logger := slog.Default()
	rt := runtime.New(runtime.Deps{
		Buffer:    telemetry.NewSampleBuffer(100),
		Registry:  process.NewRegistry(process.DefaultCatalog(), logger),
		MLEngine:  ml.NewEngine(logger),
		Optimizer: optimize.New(logger),
		Logger:    logger,
	})
	require.NoError(t, rt.Initialize())

	g := New(Deps{Runtime: rt, Logger: logger})
	require.NoError(t, g.Initialize())
	return g, rt
}

func doRequest(t *testing.T, g *Gateway, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	g.router().ServeHTTP(rec, req)
	return rec
}

func sampleNow() *telemetry.Sample {
	return &telemetry.Sample{
		ID:           "s-1",
		Timestamp:    time.Now(),
		DeviceID:     "edge-device-01",
		Temperatures: []float64{25, 25, 25, 25},
		Power:        map[string]float64{"active": 1000},
		DataQuality:  1.0,
	}
}

func TestStatusEndpoint(t *testing.T) {
	g, _ := testGateway(t)

	rec := doRequest(t, g, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status runtime.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Len(t, status.Processes, 4)
	assert.False(t, status.Running)
}

func TestLatestSampleEndpoint(t *testing.T) {
	g, rt := testGateway(t)

	rec := doRequest(t, g, http.MethodGet, "/api/v1/samples/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, rt.Buffer().Append(sampleNow()))
	rec = doRequest(t, g, http.MethodGet, "/api/v1/samples/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "edge-device-01"))
}

func TestProcessLifecycleEndpoints(t *testing.T) {
	g, rt := testGateway(t)

	rec := doRequest(t, g, http.MethodPost, "/api/v1/processes/cnc-001/start")
	require.Equal(t, http.StatusOK, rec.Code)

	st, ok := rt.Registry().Get("cnc-001")
	require.True(t, ok)
	assert.True(t, st.Active)

	rec = doRequest(t, g, http.MethodPost, "/api/v1/processes/cnc-001/stop")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, g, http.MethodPost, "/api/v1/processes/nope/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPhysicsEndpointNotFound(t *testing.T) {
	g, _ := testGateway(t)

	rec := doRequest(t, g, http.MethodGet, "/api/v1/physics/cnc-001")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainEndpointFailsWithoutData(t *testing.T) {
	g, rt := testGateway(t)
	require.NoError(t, rt.StartProcess("cnc-001"))

	rec := doRequest(t, g, http.MethodPost, "/api/v1/train")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res ml.TrainingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
}

func TestOptimizeEndpoint(t *testing.T) {
	g, rt := testGateway(t)
	require.NoError(t, rt.StartProcess("cnc-001"))
	require.NoError(t, rt.Buffer().Append(sampleNow()))

	// Without a prediction yet, the result set is empty but the call
	// still succeeds.
	rec := doRequest(t, g, http.MethodPost, "/api/v1/optimize")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzWithoutMonitor(t *testing.T) {
	g, _ := testGateway(t)

	rec := doRequest(t, g, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictionsEndpointEmpty(t *testing.T) {
	g, _ := testGateway(t)

	rec := doRequest(t, g, http.MethodGet, "/api/v1/predictions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}\n", rec.Body.String())
}

func TestConfigEndpoint(t *testing.T) {
	g, _ := testGateway(t)

	// No config attached on this gateway.
	rec := doRequest(t, g, http.MethodGet, "/api/v1/config")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	g.cfg = config.NewSafeConfig(config.Default())
	rec = doRequest(t, g, http.MethodGet, "/api/v1/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, config.Default().Version, got.Version)
	assert.NotEmpty(t, got.Catalog)
}
