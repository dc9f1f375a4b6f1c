// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

const sinkAnalytical = "analytical"

// S3Sink appends scored transactions to the object store as gzipped
// JSON lines under a dt=/hr= partition layout, one object per
// (txn, model version).
type S3Sink struct {
	client  *s3.Client
	bucket  string
	logger  *slog.Logger
	timeout time.Duration
}

func NewS3(client *s3.Client, bucket string, timeout time.Duration, logger *slog.Logger) *S3Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &S3Sink{
		client:  client,
		bucket:  bucket,
		logger:  logger,
		timeout: timeout,
	}
}

// ObjectKey is deterministic per (txn, model version): a replayed write
// overwrites the same slot instead of creating a duplicate object.
// Partitioned by event date so the batch query service can prune.
func ObjectKey(scored domain.ScoredTransaction) string {
	ts := scored.OccurredAt.UTC()
	version := strings.NewReplacer("+", "_", "/", "_").Replace(scored.ModelVersion)
	return fmt.Sprintf("tx/dt=%s/hr=%s/%s-%s.json.gz",
		ts.Format("2006-01-02"),
		ts.Format("15"),
		scored.TxnID,
		version,
	)
}

func (s *S3Sink) Write(ctx context.Context, scored domain.ScoredTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := encodeObject(scored)
	if err != nil {
		return domain.FatalSink(sinkAnalytical, err)
	}

	key := ObjectKey(scored)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		s.logger.Error("analytics put failed", "txn_id", scored.TxnID, "key", key, "error", err)
		return classifyS3(err)
	}

	return nil
}

func encodeObject(scored domain.ScoredTransaction) ([]byte, error) {
	line, err := json.Marshal(scored)
	if err != nil {
		return nil, fmt.Errorf("marshal scored transaction: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("gzip scored transaction: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip scored transaction: %w", err)
	}

	return buf.Bytes(), nil
}

// classifyS3 maps an S3 error onto the retryable/fatal taxonomy.
// Misconfiguration (missing bucket, bad credentials) cannot succeed on
// retry; throttling, timeouts, and 5xx faults can.
func classifyS3(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "InvalidBucketName":
			return domain.FatalSink(sinkAnalytical, err)
		}
	}
	return domain.RetryableSink(sinkAnalytical, err)
}

var _ Analytical = (*S3Sink)(nil)
