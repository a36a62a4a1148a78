// Package main is the entry point for the notify worker Lambda.
//
// The worker consumes the notification and invoice queues. Each SQS
// record carries either a NotificationMessage ("ntf_" message id) or an
// InvoiceMessage ("inv_" message id); the worker resolves the
// recipient, renders the email, and delivers it through SendGrid.
// Records are processed concurrently and failures are reported through
// partial batch responses so SQS retries only the affected messages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"yardlink/internal/config"
	"yardlink/internal/db"
	"yardlink/internal/external"
	"yardlink/internal/metrics"
	"yardlink/internal/types"
)

// maxConcurrentSends caps in-flight provider calls per invocation.
const maxConcurrentSends = 5

// ContactLookup resolves a recipient id to a name and email address.
type ContactLookup interface {
	GetContact(ctx context.Context, userID string) (*db.Contact, error)
}

// Handler holds the dependencies for the notify worker.
type Handler struct {
	contacts ContactLookup
	email    external.EmailProvider
	emitter  *metrics.Emitter
	from     external.EmailAddress
	appURL   string
	enabled  bool
	logger   *slog.Logger
}

// Handle processes a batch of SQS records concurrently. A record that
// fails is returned in BatchItemFailures so SQS redelivers only it;
// malformed records are acknowledged and dropped.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)

	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.processRecord(gctx, record); err != nil {
				h.logger.ErrorContext(gctx, "failed to process SQS record",
					"message_id", record.MessageId,
					"error", err,
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return response, nil
}

// processRecord routes one record by its message id prefix.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	h.recordQueueLag(ctx, record)

	var envelope struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal([]byte(record.Body), &envelope); err != nil {
		// Permanent parse failure; acknowledge and drop.
		h.logger.ErrorContext(ctx, "unparseable SQS record body, dropping",
			"message_id", record.MessageId, "error", err)
		return nil
	}

	if !h.enabled {
		h.logger.InfoContext(ctx, "email delivery disabled by feature flag, dropping",
			"message_id", envelope.MessageID)
		return nil
	}

	switch {
	case strings.HasPrefix(envelope.MessageID, "inv_"):
		return h.processInvoice(ctx, record.Body)
	case strings.HasPrefix(envelope.MessageID, "ntf_"):
		return h.processNotification(ctx, record.Body)
	default:
		h.logger.WarnContext(ctx, "unrecognized message id prefix, dropping",
			"message_id", envelope.MessageID)
		return nil
	}
}

// processNotification delivers a lifecycle notification email to the
// recipient on record.
func (h *Handler) processNotification(ctx context.Context, body string) error {
	var msg types.NotificationMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "malformed notification message, dropping", "error", err)
		return nil
	}

	contact, err := h.contacts.GetContact(ctx, msg.RecipientID)
	if err != nil {
		h.emitter.RecordEmailDelivery(ctx, "error")
		return fmt.Errorf("resolving recipient %s: %w", msg.RecipientID, err)
	}

	subject, text := renderNotification(msg, contact.Name, h.appURL)

	providerID, err := h.email.Send(ctx, external.EmailInput{
		To:          external.EmailAddress{Address: contact.Email, Name: contact.Name},
		From:        h.from,
		Subject:     subject,
		Text:        text,
		HTML:        textToHTML(text),
		ReferenceID: msg.MessageID,
	})
	if err != nil {
		h.emitter.RecordEmailDelivery(ctx, "error")
		return fmt.Errorf("sending notification email: %w", err)
	}

	h.emitter.RecordEmailDelivery(ctx, "success")
	h.logger.InfoContext(ctx, "notification email delivered",
		"message_id", msg.MessageID,
		"type", string(msg.Type),
		"job_id", msg.JobID,
		"provider_message_id", providerID,
	)
	return nil
}

// processInvoice delivers the payment receipt email to the customer.
func (h *Handler) processInvoice(ctx context.Context, body string) error {
	var msg types.InvoiceMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "malformed invoice message, dropping", "error", err)
		return nil
	}

	subject, text := renderInvoice(msg, h.appURL)

	providerID, err := h.email.Send(ctx, external.EmailInput{
		To:          external.EmailAddress{Address: msg.CustomerEmail, Name: msg.CustomerName},
		From:        h.from,
		Subject:     subject,
		Text:        text,
		HTML:        textToHTML(text),
		ReferenceID: msg.MessageID,
	})
	if err != nil {
		h.emitter.RecordEmailDelivery(ctx, "error")
		return fmt.Errorf("sending invoice email: %w", err)
	}

	h.emitter.RecordEmailDelivery(ctx, "success")
	h.logger.InfoContext(ctx, "invoice email delivered",
		"message_id", msg.MessageID,
		"job_id", msg.JobID,
		"provider_message_id", providerID,
	)
	return nil
}

// recordQueueLag emits the time between enqueue and processing, using
// the SQS SentTimestamp attribute (millisecond epoch).
func (h *Handler) recordQueueLag(ctx context.Context, record events.SQSMessage) {
	sent, ok := record.Attributes["SentTimestamp"]
	if !ok {
		return
	}
	millis, err := strconv.ParseInt(sent, 10, 64)
	if err != nil {
		return
	}
	h.emitter.RecordEmailQueueLag(ctx, time.Since(time.UnixMilli(millis)))
}

// renderNotification produces the subject and plain-text body for a
// lifecycle notification.
func renderNotification(msg types.NotificationMessage, recipientName string, appURL string) (string, string) {
	greeting := "Hi"
	if recipientName != "" {
		greeting = "Hi " + recipientName
	}
	jobLink := appURL + "/jobs/" + msg.JobID

	var subject, line string
	switch msg.Type {
	case types.NotifProposalReceived:
		subject = "A provider wants your job: " + msg.JobTitle
		line = "A lawn care provider has proposed to take on your job."
	case types.NotifProposalAccepted:
		subject = "You got the job: " + msg.JobTitle
		line = "Your proposal was accepted. Head to the app to coordinate the visit."
	case types.NotifPaymentSubmitted:
		subject = "Payment submitted for " + msg.JobTitle
		line = "A payment reference was submitted for this job and is awaiting confirmation."
	case types.NotifPaymentConfirmed:
		subject = "Payment confirmed for " + msg.JobTitle
		line = "The payment for this job has been confirmed. Your receipt is on its way."
	case types.NotifJobCompleted:
		subject = "Job completed: " + msg.JobTitle
		line = "This job has been marked completed."
	case types.NotifReviewReceived:
		subject = "You received a new review"
		line = "Someone left you a review on a completed job."
	case types.NotifJobScheduled:
		subject = "Your recurring lawn cut is scheduled"
		line = "Your autopay schedule generated a new job request."
	case types.NotifPayoutSent:
		subject = "Your YardLink payout is on the way"
		line = "A payout for your completed jobs has been recorded."
	default:
		subject = "Update on " + msg.JobTitle
		line = "There is an update on one of your jobs."
	}

	body := fmt.Sprintf("%s,\n\n%s\n\nView the details: %s\n\nThe YardLink Team\n",
		greeting, line, jobLink)
	return subject, body
}

// renderInvoice produces the subject and plain-text receipt body.
func renderInvoice(msg types.InvoiceMessage, appURL string) (string, string) {
	subject := "Your YardLink payment receipt"

	var b strings.Builder
	if msg.CustomerName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", msg.CustomerName)
	} else {
		b.WriteString("Hi,\n\n")
	}
	b.WriteString("Thanks for your payment. Here is your receipt.\n\n")
	fmt.Fprintf(&b, "Job:       %s, %s\n", msg.Location, msg.Parish)
	fmt.Fprintf(&b, "Lawn size: %s\n", msg.LawnSize)
	fmt.Fprintf(&b, "Amount:    JMD %.2f\n", msg.Amount)
	if msg.PaymentReference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", msg.PaymentReference)
	}
	fmt.Fprintf(&b, "Paid at:   %s\n", msg.ConfirmedAt.Format("2 January 2006 15:04 MST"))
	fmt.Fprintf(&b, "\nView the job: %s/jobs/%s\n\nThe YardLink Team\n", appURL, msg.JobID)

	return subject, b.String()
}

// textToHTML wraps a plain-text body in minimal paragraph markup.
func textToHTML(text string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("notify worker Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	cwClient := cloudwatch.NewFromConfig(sdkCfg)

	sendgrid := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		external.SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey.Unmask(),
			Logger: logger,
		},
	)

	handler := &Handler{
		contacts: db.NewUserRepository(pool),
		email:    sendgrid,
		emitter:  metrics.NewEmitter(cwClient, cfg.Observability.MetricNamespace, logger),
		from: external.EmailAddress{
			Address: cfg.Email.FromAddress,
			Name:    cfg.Email.FromName,
		},
		appURL:  cfg.Server.AppURL,
		enabled: cfg.Feature.EnableEmail,
		logger:  logger,
	}

	logger.Info("notify worker Lambda initialized",
		"environment", cfg.Environment,
		"from_address", cfg.Email.FromAddress,
		"email_enabled", cfg.Feature.EnableEmail,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting
	// the Lambda runtime.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/notify-worker/main.go
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(raw, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}

// secretProvider returns the SSM-backed provider for deployed
// environments; local development resolves from the environment only.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

var _ ContactLookup = (*db.UserRepository)(nil)
