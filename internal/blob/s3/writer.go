package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mkravets/crossarb/internal/domain"
)

// ReportWriter uploads session reports as JSON objects. Reports are small,
// so a single PutObject per report is all that's needed.
type ReportWriter struct {
	client *s3.Client
	bucket string
}

// NewReportWriter creates a writer that uploads to the given client's bucket.
func NewReportWriter(c *Client) *ReportWriter {
	return &ReportWriter{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// sessionReport is the JSON shape of an uploaded report.
type sessionReport struct {
	SessionID     string   `json:"session_id"`
	Mode          string   `json:"mode"`
	Symbols       []string `json:"symbols"`
	StartedAt     string   `json:"started_at"`
	EndedAt       string   `json:"ended_at"`
	TotalTrades   int      `json:"total_trades"`
	WinningTrades int      `json:"winning_trades"`
	WinRatePct    float64  `json:"win_rate_pct"`
	TotalPnL      float64  `json:"total_pnl"`
	DailyPnL      float64  `json:"daily_pnl"`
}

// SaveSession uploads the end-of-run snapshot to
// "reports/session_<start>_<id>.json".
func (w *ReportWriter) SaveSession(ctx context.Context, snap domain.SessionSnapshot) error {
	report := sessionReport{
		SessionID:     snap.ID,
		Mode:          snap.Mode,
		Symbols:       snap.Symbols,
		StartedAt:     snap.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		EndedAt:       snap.EndedAt.UTC().Format("2006-01-02T15:04:05Z"),
		TotalTrades:   snap.Stats.TotalTrades,
		WinningTrades: snap.Stats.WinningTrades,
		WinRatePct:    snap.Stats.WinRate(),
		TotalPnL:      snap.Stats.TotalPnL,
		DailyPnL:      snap.Stats.DailyPnL,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal session report: %w", err)
	}

	key := fmt.Sprintf("reports/session_%s_%s.json",
		snap.StartedAt.UTC().Format("20060102_150405"), snap.ID)

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put session report %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*ReportWriter)(nil)
