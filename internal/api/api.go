package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cardio-backend/internal/core"
	"cardio-backend/internal/database"
	"cardio-backend/internal/export"
	"cardio-backend/internal/messaging"
	"cardio-backend/internal/storage"
	"cardio-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxUploadSize = 32 << 20

type BackendService struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	fuser     *core.Fuser
	assembler *core.Assembler
	exporter  *export.WebhookExporter

	uploadBucket string
}

func NewBackendService(
	db *gorm.DB,
	store storage.Provider,
	publisher messaging.Publisher,
	cfg core.Config,
	exporter *export.WebhookExporter,
	uploadBucket string,
) *BackendService {
	return &BackendService{
		db:           db,
		storage:      store,
		publisher:    publisher,
		fuser:        core.NewFuser(cfg),
		assembler:    core.NewAssembler(cfg),
		exporter:     exporter,
		uploadBucket: uploadBucket,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/submissions", func(r chi.Router) {
		r.Post("/{modality}", RestHandler(s.CreateSubmission))
		r.Get("/", RestHandler(s.ListSubmissions))
		r.Get("/{submission_id}", RestHandler(s.GetSubmission))
	})
	r.Route("/reports", func(r chi.Router) {
		r.Post("/fusion", RestHandler(s.CreateFusionReport))
		r.Get("/", RestHandler(s.ListReports))
		r.Get("/{report_id}", RestHandler(s.GetReport))
	})
}

func (s *BackendService) CreateSubmission(r *http.Request) (any, error) {
	modality, err := core.ParseModality(chi.URLParam(r, "modality"))
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid modality: %v", err)
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing 'file' form field")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "error reading upload: %v", err)
	}

	// Decode and validate up front so malformed payloads fail the
	// request instead of a queued task.
	if _, err := core.InputFromUpload(modality, header.Filename, data); err != nil {
		var formatErr *core.FormatError
		var shapeErr *core.ShapeError
		if errors.As(err, &formatErr) || errors.As(err, &shapeErr) {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid %s payload: %v", modality, err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error validating upload: %v", err)
	}

	ctx := r.Context()

	submission := &database.Submission{
		Id:           uuid.New(),
		Modality:     string(modality),
		Status:       database.JobQueued,
		FileName:     header.Filename,
		ObjectKey:    fmt.Sprintf("%s/%s", modality, uuid.New().String()),
		CreationTime: time.Now().UTC(),
	}

	if err := s.storage.PutObject(ctx, s.uploadBucket, submission.ObjectKey, bytes.NewReader(data)); err != nil {
		slog.Error("error storing upload", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store upload")
	}

	if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
		slog.Error("error creating submission", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create submission entry")
	}

	payload := messaging.ScoreTaskPayload{
		SubmissionId: submission.Id,
		Modality:     string(modality),
	}

	if err := s.publisher.PublishScoreTask(ctx, payload); err != nil {
		slog.Error("error publishing score task", "submission_id", submission.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue score task")
	}

	slog.Info("submission created", "submission_id", submission.Id, "modality", modality)
	return api.CreateSubmissionResponse{SubmissionId: submission.Id}, nil
}

func (s *BackendService) GetSubmission(r *http.Request) (any, error) {
	submissionId, err := URLParamUUID(r, "submission_id")
	if err != nil {
		return nil, err
	}

	submission, err := database.GetSubmission(r.Context(), s.db, submissionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "submission not found")
		}
		slog.Error("error getting submission", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving submission record")
	}

	return submissionToDTO(submission), nil
}

func (s *BackendService) ListSubmissions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.SearchSubmissionsParams](r)
	if err != nil {
		return nil, err
	}

	var filter core.Filter
	if params.Query != "" {
		filter, err = core.ParseQuery(params.Query)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid query: %v", err)
		}
	}

	var rows []database.Submission
	if err := s.db.WithContext(r.Context()).Order("creation_time DESC").Find(&rows).Error; err != nil {
		slog.Error("error listing submissions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing submissions")
	}

	submissions := make([]api.Submission, 0, len(rows))
	for _, row := range rows {
		if filter != nil && !filter.Matches(core.SubmissionRecord{
			Modality: row.Modality,
			Label:    row.Label.String,
			Status:   row.Status,
			FileName: row.FileName,
			Score:    row.Score.Float64,
		}) {
			continue
		}
		submissions = append(submissions, submissionToDTO(row))
	}

	return api.ListSubmissionsResponse{Submissions: submissions}, nil
}

// CreateFusionReport fuses the latest completed submission of each
// modality into an overall assessment, persists it, and exports it to
// the webhook if one is configured.
func (s *BackendService) CreateFusionReport(r *http.Request) (any, error) {
	ctx := r.Context()

	latest, err := database.LatestSubmissionPerModality(ctx, s.db)
	if err != nil {
		slog.Error("error querying latest submissions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error querying submissions")
	}

	preds := make(map[core.Modality]core.ModalityPrediction, len(latest))
	inputRefs := make(map[core.Modality]string, len(latest))
	var newest database.Submission
	for name, row := range latest {
		modality, err := core.ParseModality(name)
		if err != nil {
			slog.Error("submission row with unknown modality", "modality", name)
			continue
		}
		preds[modality] = core.ModalityPrediction{
			Modality:     modality,
			RawScore:     row.Score.Float64,
			Label:        row.Label.String,
			Confidence:   row.Confidence.Float64,
			ModelVersion: row.ModelVersion.String,
		}
		inputRefs[modality] = row.FileName
		if newest.Id == uuid.Nil || (row.CompletionTime.Valid && row.CompletionTime.Time.After(newest.CompletionTime.Time)) {
			newest = row
		}
	}

	fusion, err := s.fuser.Fuse(preds, core.AllModalities())
	if err != nil {
		if errors.Is(err, core.ErrNoModalityAvailable) {
			return nil, CodedErrorf(http.StatusNotFound, "no completed submissions to fuse")
		}
		slog.Error("error fusing predictions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error fusing predictions")
	}

	report, err := s.assembler.Assemble(fusion, core.ReportMetadata{
		SubmissionID: newest.Id,
		InputRefs:    inputRefs,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("error assembling report", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error assembling report")
	}

	dto := reportToDTO(report)

	payload, err := json.Marshal(dto)
	if err != nil {
		slog.Error("error serializing report", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error serializing report")
	}

	row := database.FusionReport{
		Id:           report.Id,
		OverallLabel: fusion.OverallLabel,
		OverallScore: fusion.OverallScore,
		Degraded:     fusion.Degraded,
		Payload:      datatypes.JSON(payload),
		CreationTime: report.CreatedAt,
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		slog.Error("error saving fusion report", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to save fusion report")
	}

	if s.exporter.Enabled() {
		if err := s.exporter.ExportReport(ctx, dto); err != nil {
			slog.Error("error exporting fusion report", "report_id", report.Id, "error", err)
		}
	}

	slog.Info("fusion report created", "report_id", report.Id, "overall_label", fusion.OverallLabel, "degraded", fusion.Degraded)

	return dto, nil
}

func (s *BackendService) GetReport(r *http.Request) (any, error) {
	reportId, err := URLParamUUID(r, "report_id")
	if err != nil {
		return nil, err
	}

	var row database.FusionReport
	if err := s.db.WithContext(r.Context()).First(&row, "id = ?", reportId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "report not found")
		}
		slog.Error("error getting report", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving report record")
	}

	return json.RawMessage(row.Payload), nil
}

func (s *BackendService) ListReports(r *http.Request) (any, error) {
	var rows []database.FusionReport
	if err := s.db.WithContext(r.Context()).Order("creation_time DESC").Find(&rows).Error; err != nil {
		slog.Error("error listing reports", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing reports")
	}

	reports := make([]api.FusionReport, 0, len(rows))
	for _, row := range rows {
		var report api.FusionReport
		if err := json.Unmarshal(row.Payload, &report); err != nil {
			slog.Error("error decoding stored report", "report_id", row.Id, "error", err)
			continue
		}
		reports = append(reports, report)
	}

	return api.ListReportsResponse{Reports: reports}, nil
}

func submissionToDTO(row database.Submission) api.Submission {
	sub := api.Submission{
		Id:           row.Id,
		Modality:     row.Modality,
		Status:       row.Status,
		FileName:     row.FileName,
		Label:        row.Label.String,
		Score:        row.Score.Float64,
		Confidence:   row.Confidence.Float64,
		ModelVersion: row.ModelVersion.String,
		Error:        row.Error.String,
		CreationTime: row.CreationTime,
	}
	if row.CompletionTime.Valid {
		t := row.CompletionTime.Time
		sub.CompletionTime = &t
	}
	return sub
}

func reportToDTO(report core.Report) api.FusionReport {
	modalities := make([]api.ModalityResult, 0, len(report.Fusion.PerModality))
	contributing := make([]string, 0, len(report.Fusion.Contributing))
	for _, modality := range report.Fusion.Contributing {
		pred := report.Fusion.PerModality[modality]
		modalities = append(modalities, api.ModalityResult{
			Modality:     string(modality),
			RawScore:     pred.RawScore,
			Label:        pred.Label,
			Confidence:   pred.Confidence,
			ModelVersion: pred.ModelVersion,
		})
		contributing = append(contributing, string(modality))
	}

	return api.FusionReport{
		Id:           report.Id,
		OverallScore: report.Fusion.OverallScore,
		OverallLabel: report.Fusion.OverallLabel,
		Degraded:     report.Fusion.Degraded,
		Modalities:   modalities,
		Contributing: contributing,
		Guidance: api.GuidanceSection{
			Precautions:  report.Guidance.Precautions,
			Measurements: report.Guidance.Measurements,
			Consult:      report.Guidance.Consult,
			Diet:         report.Guidance.Diet,
			Habits:       report.Guidance.Habits,
		},
		Advice:       report.Advice,
		CreationTime: report.CreatedAt,
	}
}
