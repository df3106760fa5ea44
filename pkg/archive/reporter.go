package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// ReportUploaderConfig holds configuration for the outcome report uploader.
type ReportUploaderConfig struct {
	BucketName   string
	ObjectPrefix string // e.g. "reports"
}

// ReportUploader writes one compressed JSONL report per processed batch:
// one line per record with its terminal state. Reports live beside the
// pipeline's files under <prefix>/<date>/<batch id>.jsonl.gz.
type ReportUploader struct {
	client GCSClient
	config ReportUploaderConfig
	logger zerolog.Logger
	// now is swapped in tests for a fixed clock.
	now func() time.Time
}

// NewReportUploader creates an uploader for batch outcome reports.
func NewReportUploader(gcsClient GCSClient, config ReportUploaderConfig, logger zerolog.Logger) (*ReportUploader, error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	if config.ObjectPrefix == "" {
		config.ObjectPrefix = "reports"
	}
	return &ReportUploader{
		client: gcsClient,
		config: config,
		logger: logger.With().Str("component", "ReportUploader").Logger(),
		now:    time.Now,
	}, nil
}

// reportLine is one record's terminal state in the report.
type reportLine struct {
	BatchID   string `json:"batch_id"`
	State     string `json:"state"`
	ProductID string `json:"product_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
	Count     int    `json:"count,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ArchiveOutcome uploads the batch's report object.
func (u *ReportUploader) ArchiveOutcome(ctx context.Context, outcome catalog.BatchOutcome) error {
	objectName := path.Join(
		u.config.ObjectPrefix,
		u.now().UTC().Format("2006/01/02"),
		fmt.Sprintf("%s.jsonl.gz", outcome.BatchID),
	)

	writer := u.client.Bucket(u.config.BucketName).Object(objectName).NewWriter(ctx)
	gz := gzip.NewWriter(writer)
	enc := json.NewEncoder(gz)

	writeErr := func() error {
		for _, entry := range outcome.Successes {
			line := reportLine{
				BatchID:   outcome.BatchID,
				State:     "persisted",
				ProductID: entry.Product.ID,
				Title:     entry.Product.Title,
				Price:     entry.Product.Price.String(),
				Count:     entry.Stock.Count,
			}
			if err := enc.Encode(line); err != nil {
				return fmt.Errorf("encode success line: %w", err)
			}
		}
		for _, failure := range outcome.Failures {
			line := reportLine{
				BatchID:   outcome.BatchID,
				State:     "failed",
				MessageID: failure.MessageID,
				Reason:    string(failure.Reason),
				Detail:    failure.Detail,
			}
			if err := enc.Encode(line); err != nil {
				return fmt.Errorf("encode failure line: %w", err)
			}
		}
		return gz.Close()
	}()

	closeErr := writer.Close()
	if writeErr != nil {
		return fmt.Errorf("write report %s: %w", objectName, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close report writer for %s: %w", objectName, closeErr)
	}

	u.logger.Debug().
		Str("object_name", objectName).
		Int("record_count", outcome.Size()).
		Msg("Batch outcome report archived")
	return nil
}
