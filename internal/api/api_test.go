package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	backend "cardio-backend/internal/api"
	"cardio-backend/internal/core"
	"cardio-backend/internal/database"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"
	"cardio-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testUploadBucket = "uploads"

// A one-stump heart ensemble and a two-component ppg projection, both
// small enough to verify predictions by hand.
const heartModelJSON = `{
	"version": "heart-v1",
	"base_score": 0.2,
	"trees": [{
		"feature": [0, -1, -1],
		"threshold": [0.5, 0, 0],
		"left": [1, 0, 0],
		"right": [2, 0, 0],
		"value": [0, -1.0, 1.0]
	}]
}`

const heartScalerJSON = `{
	"version": "heart-v1",
	"features": ["Sex", "BMI"],
	"mean": [0, 0],
	"scale": [1, 2]
}`

const ppgModelJSON = `{
	"version": "ppg-v2",
	"coef": [0.5, -0.25],
	"intercept": 0.1
}`

const ppgPcaJSON = `{
	"version": "ppg-v2",
	"mean": [0, 0, 0, 0],
	"components": [
		[1, 0, 0, 0],
		[0, 1, 0, 0]
	]
}`

func testEngineConfig(artifactDir string) core.Config {
	return core.Config{
		ArtifactDir: artifactDir,
		Shapes: core.ShapeConfig{
			ECGImageSize: 8,
			ECGSeriesLen: 5,
			PPGSeriesLen: 4,
		},
		HeartFeatures: []string{"Sex", "BMI"},
		Weights: map[core.Modality]float64{
			core.ModalityECG:   0.45,
			core.ModalityHeart: 0.30,
			core.ModalityPPG:   0.25,
		},
		Bands: core.RiskBands{
			Thresholds: []float64{0.2, 0.5, 0.8},
			Labels:     []string{"Low risk", "Moderate risk", "Elevated risk", "High risk"},
		},
		Guidance: []core.Guidance{
			{Precautions: []string{"low tier"}},
			{Precautions: []string{"moderate tier"}},
			{Precautions: []string{"elevated tier"}},
			{Precautions: []string{"high tier"}},
		},
		Advice:            []string{"screening aid, not a diagnosis"},
		DefaultConfidence: 0.5,
	}
}

func writeTestArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range map[string]string{
		"heart_tabular/model.json":  heartModelJSON,
		"heart_tabular/scaler.json": heartScalerJSON,
		"ppg_signal/model.json":     ppgModelJSON,
		"ppg_signal/pca.json":       ppgPcaJSON,
	} {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return dir
}

type testBackend struct {
	router    chi.Router
	db        *gorm.DB
	processor *core.TaskProcessor
	queue     *messaging.InMemoryQueue
}

func setupTestBackend(t *testing.T) *testBackend {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	store := storage.NewLocalProvider(t.TempDir())
	queue := messaging.NewInMemoryQueue()
	cfg := testEngineConfig(writeTestArtifacts(t))

	registry := core.NewRegistry(cfg, core.NewModelLoaders())
	pipeline := core.NewPipeline(cfg, registry)
	processor := core.NewTaskProcessor(db, store, queue, pipeline, registry, nil, testUploadBucket)

	service := backend.NewBackendService(db, store, queue, cfg, nil, testUploadBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return &testBackend{router: router, db: db, processor: processor, queue: queue}
}

func (b *testBackend) upload(t *testing.T, modality, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/submissions/%s", modality), &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	return rec
}

// drainQueue processes queued score tasks until every submission has
// left the QUEUED and RUNNING states.
func (b *testBackend) drainQueue(t *testing.T) {
	t.Helper()

	go b.processor.Start()
	defer b.queue.Close()

	require.Eventually(t, func() bool {
		var pending int64
		err := b.db.Model(&database.Submission{}).
			Where("status IN ?", []string{database.JobQueued, database.JobRunning}).
			Count(&pending).Error
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	b := setupTestBackend(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSubmissionInvalidModality(t *testing.T) {
	b := setupTestBackend(t)

	rec := b.upload(t, "xray", "scan.png", []byte("data"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSubmissionMalformedPayload(t *testing.T) {
	b := setupTestBackend(t)

	// Undecodable image bytes.
	rec := b.upload(t, "ecg", "trace.png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Non-numeric samples.
	rec = b.upload(t, "ppg", "signal.csv", []byte("pulse\nabc\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Header with no data row.
	rec = b.upload(t, "heart", "patient.csv", []byte("Sex,BMI\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSubmissionMissingFile(t *testing.T) {
	b := setupTestBackend(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/ppg", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSubmissionNotFound(t *testing.T) {
	b := setupTestBackend(t)

	req := httptest.NewRequest(http.MethodGet, "/submissions/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFusionReportWithoutSubmissions(t *testing.T) {
	b := setupTestBackend(t)

	req := httptest.NewRequest(http.MethodPost, "/reports/fusion", nil)
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoreAndFuseWorkflow(t *testing.T) {
	b := setupTestBackend(t)

	rec := b.upload(t, "heart", "patient.csv", []byte("Sex,BMI\n1,4\n"))
	require.Equal(t, http.StatusOK, rec.Code)
	var heartResp api.CreateSubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &heartResp))

	rec = b.upload(t, "ppg", "signal.csv", []byte("2\n4\n0\n0\n"))
	require.Equal(t, http.StatusOK, rec.Code)
	var ppgResp api.CreateSubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ppgResp))

	b.drainQueue(t)

	req := httptest.NewRequest(http.MethodGet, "/submissions/"+heartResp.SubmissionId.String(), nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var heartSub api.Submission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &heartSub))
	assert.Equal(t, database.JobCompleted, heartSub.Status)
	// Standardized x[0] exceeds the stump threshold: sigmoid(0.2 + 1.0).
	assert.Equal(t, "Abnormal", heartSub.Label)
	assert.InDelta(t, 0.7685248, heartSub.Score, 1e-6)
	assert.Equal(t, "heart-v1", heartSub.ModelVersion)
	require.NotNil(t, heartSub.CompletionTime)

	req = httptest.NewRequest(http.MethodGet, "/submissions/"+ppgResp.SubmissionId.String(), nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ppgSub api.Submission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ppgSub))
	assert.Equal(t, database.JobCompleted, ppgSub.Status)
	// z = 0.1 + 0.5*2 - 0.25*4 so the score sits just above 0.5.
	assert.Equal(t, "MI", ppgSub.Label)
	assert.InDelta(t, 0.5249792, ppgSub.Score, 1e-6)

	req = httptest.NewRequest(http.MethodPost, "/reports/fusion", nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report api.FusionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	// heart 0.30 and ppg 0.25 renormalized without ecg.
	expected := (0.30*0.7685248 + 0.25*0.5249792) / 0.55
	assert.InDelta(t, expected, report.OverallScore, 1e-6)
	assert.Equal(t, "Elevated risk", report.OverallLabel)
	assert.True(t, report.Degraded)
	assert.Equal(t, []string{"heart", "ppg"}, report.Contributing)
	assert.Equal(t, []string{"elevated tier"}, report.Guidance.Precautions)
	assert.Equal(t, []string{"screening aid, not a diagnosis"}, report.Advice)

	// The persisted report is returned verbatim.
	req = httptest.NewRequest(http.MethodGet, "/reports/"+report.Id.String(), nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stored api.FusionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, report.Id, stored.Id)
	assert.InDelta(t, report.OverallScore, stored.OverallScore, 1e-9)

	req = httptest.NewRequest(http.MethodGet, "/reports/", nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list api.ListReportsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, report.Id, list.Reports[0].Id)
}

func TestListSubmissionsWithQuery(t *testing.T) {
	b := setupTestBackend(t)

	rec := b.upload(t, "heart", "patient.csv", []byte("Sex,BMI\n1,4\n"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = b.upload(t, "ppg", "signal.csv", []byte("2\n4\n0\n0\n"))
	require.Equal(t, http.StatusOK, rec.Code)

	b.drainQueue(t)

	query := url.QueryEscape(`modality = "heart" AND score > 0.5`)
	req := httptest.NewRequest(http.MethodGet, "/submissions/?query="+query, nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.ListSubmissionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Submissions, 1)
	assert.Equal(t, "heart", resp.Submissions[0].Modality)

	req = httptest.NewRequest(http.MethodGet, "/submissions/?query="+url.QueryEscape("score <"), nil)
	rec = httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportNotFound(t *testing.T) {
	b := setupTestBackend(t)

	req := httptest.NewRequest(http.MethodGet, "/reports/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
