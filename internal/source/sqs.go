// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSSource consumes an SQS queue with long polling.
type SQSSource struct {
	client   *sqs.Client
	queueURL string
	pollWait time.Duration
	logger   *slog.Logger
}

func NewSQS(client *sqs.Client, queueURL string, pollWait time.Duration, logger *slog.Logger) *SQSSource {
	if logger == nil {
		logger = slog.Default()
	}
	if pollWait <= 0 {
		pollWait = 20 * time.Second
	}
	// SQS caps WaitTimeSeconds at 20.
	if pollWait > 20*time.Second {
		pollWait = 20 * time.Second
	}

	return &SQSSource{
		client:   client,
		queueURL: queueURL,
		pollWait: pollWait,
		logger:   logger,
	}
}

func (s *SQSSource) Receive(ctx context.Context, maxBatch int, visibility time.Duration) ([]Message, error) {
	if maxBatch <= 0 || maxBatch > 10 {
		maxBatch = 10
	}

	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: int32(maxBatch),
		WaitTimeSeconds:     int32(s.pollWait / time.Second),
		VisibilityTimeout:   int32(visibility / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(aws.ToString(m.Body)),
		})
	}

	return msgs, nil
}

func (s *SQSSource) Acknowledge(ctx context.Context, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

func (s *SQSSource) ExtendVisibility(ctx context.Context, receiptHandle string, d time.Duration) error {
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(d / time.Second),
	})
	if err != nil {
		return fmt.Errorf("sqs change visibility: %w", err)
	}
	return nil
}

func (s *SQSSource) Release(ctx context.Context, receiptHandle string) error {
	// Visibility of zero makes the message immediately redeliverable.
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("sqs release: %w", err)
	}
	return nil
}

var _ EventSource = (*SQSSource)(nil)
