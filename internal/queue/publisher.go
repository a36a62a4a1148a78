// Package queue provides SQS-based message producers for dispatching
// notification and invoice payloads to the notify worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"yardlink/internal/config"
	"yardlink/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NotificationPublisher sends NotificationMessage payloads to the
// notification queue. Callers treat failures as fire-and-forget: they
// log and move on, so this type never retries internally.
type NotificationPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewNotificationPublisher creates a publisher bound to the
// notification queue from AWSConfig.
func NewNotificationPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *NotificationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationPublisher{
		client:   client,
		queueURL: awsCfg.NotificationQueue,
		logger:   logger,
	}
}

// Publish serializes the message and sends it to the notification
// queue.
func (p *NotificationPublisher) Publish(ctx context.Context, msg types.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal NotificationMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Type)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send notification to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "notification message sent",
		"message_id", msg.MessageID,
		"type", string(msg.Type),
		"recipient_id", msg.RecipientID,
		"job_id", msg.JobID,
	)

	return nil
}

// InvoicePublisher sends InvoiceMessage payloads to the invoice queue.
type InvoicePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewInvoicePublisher creates a publisher bound to the invoice queue
// from AWSConfig.
func NewInvoicePublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *InvoicePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoicePublisher{
		client:   client,
		queueURL: awsCfg.InvoiceQueue,
		logger:   logger,
	}
}

// PublishInvoice serializes the invoice snapshot and sends it to the
// invoice queue.
func (p *InvoicePublisher) PublishInvoice(ctx context.Context, msg types.InvoiceMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal InvoiceMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send invoice to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "invoice message sent",
		"message_id", msg.MessageID,
		"job_id", msg.JobID,
	)

	return nil
}
