package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sells-group/dnc-scrub/internal/config"
	"github.com/sells-group/dnc-scrub/internal/model"
)

// JobNotification is the webhook body sent when a change-list job completes.
type JobNotification struct {
	Type      string         `json:"type"`
	From      string         `json:"from"`
	To        string         `json:"to,omitempty"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// WebhookNotifier announces completed jobs to a webhook (an email relay or
// chat hook). With no webhook URL configured it does nothing.
type WebhookNotifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// NotifyJobComplete sends the completion summary for job.
func (n *WebhookNotifier) NotifyJobComplete(ctx context.Context, job model.ChangeListJob) error {
	if n.cfg.WebhookURL == "" {
		return nil
	}

	areas := strings.Join(job.AreaCodes, ", ")
	if areas == "" {
		areas = "all"
	}
	note := JobNotification{
		Type:    "change_list_complete",
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: fmt.Sprintf("DNC %s update complete (%s)", job.ChangeType, areas),
		Message: fmt.Sprintf(
			"Processed %d of %d records (%d failed, %d skipped) in %.1fs",
			job.ProcessedRecords, job.TotalRecords, job.FailedRecords, job.SkippedRecords,
			float64(job.ProcessingDurationMs)/1000,
		),
		Details: map[string]any{
			"job_id":            job.ID,
			"change_type":       job.ChangeType,
			"area_codes":        job.AreaCodes,
			"total_records":     job.TotalRecords,
			"processed_records": job.ProcessedRecords,
			"failed_records":    job.FailedRecords,
			"skipped_records":   job.SkippedRecords,
			"duration_ms":       job.ProcessingDurationMs,
		},
		Timestamp: time.Now().UTC(),
	}
	return postJSON(ctx, n.client, n.cfg.WebhookURL, n.cfg.APIKey, note)
}
