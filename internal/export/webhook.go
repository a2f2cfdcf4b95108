package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cardio-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

// WebhookExporter delivers completed fusion reports to a configured
// HTTP endpoint. Delivery is best effort; the report is already
// persisted before export is attempted.
type WebhookExporter struct {
	client *resty.Client
	url    string
}

func NewWebhookExporter(url string) *WebhookExporter {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &WebhookExporter{client: client, url: url}
}

func (e *WebhookExporter) Enabled() bool {
	return e != nil && e.url != ""
}

func (e *WebhookExporter) ExportReport(ctx context.Context, report api.FusionReport) error {
	if !e.Enabled() {
		return nil
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(e.url)
	if err != nil {
		return fmt.Errorf("error delivering report %s to webhook: %w", report.Id, err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d for report %s", resp.StatusCode(), report.Id)
	}

	slog.Info("fusion report exported", "report_id", report.Id, "status", resp.StatusCode())
	return nil
}
