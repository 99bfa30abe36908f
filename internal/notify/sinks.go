package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/tash-comp/rain-app/internal/models"
)

// LogSink writes alerts to the service log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, alert models.RainAlert) error {
	s.logger.Info("rain alert notification",
		zap.String("alert_id", alert.ID),
		zap.String("title", Title(alert)),
		zap.String("body", Body(alert)),
		zap.Float64("latitude", alert.Location.Latitude),
		zap.Float64("longitude", alert.Location.Longitude),
		zap.Time("alert_time", alert.Timestamp))
	return nil
}

// notificationPayload is the JSON shape posted to webhooks and queued on SQS.
type notificationPayload struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Alert models.RainAlert `json:"alert"`
}

func newPayload(alert models.RainAlert) notificationPayload {
	return notificationPayload{Title: Title(alert), Body: Body(alert), Alert: alert}
}

// WebhookSink POSTs the alert as JSON to a URL (push gateway, chat webhook).
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, alert models.RainAlert) error {
	raw, err := json.Marshal(newPayload(alert))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", alert.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink queues alerts for a downstream push-notification worker.
type SQSSink struct {
	client   SQSSender
	queueURL string
}

func NewSQSSink(client SQSSender, queueURL string) *SQSSink {
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Name() string { return "sqs" }

func (s *SQSSink) Deliver(ctx context.Context, alert models.RainAlert) error {
	raw, err := json.Marshal(newPayload(alert))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(raw)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"alert_id": {DataType: aws.String("String"), StringValue: aws.String(alert.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", s.queueURL, err)
	}
	return nil
}
