package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/collateral-pay/backend/internal/events"
	"go.uber.org/zap"
)

const (
	HeaderSignature = "X-Collateral-Signature"
	HeaderEventType = "X-Collateral-Event"
	HeaderTimestamp = "X-Collateral-Timestamp"
)

// WebhookClient posts channel events to an external HTTP endpoint.
type WebhookClient struct {
	url        string
	secret     []byte
	httpClient *http.Client
	log        *zap.Logger
}

func NewWebhookClient(url, secret string, log *zap.Logger) *WebhookClient {
	return &WebhookClient{
		url:    url,
		secret: []byte(secret),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Deliver отправляет событие. Подпись: hex(HMAC-SHA256(secret, timestamp + "." + body)).
func (c *WebhookClient) Deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, event.Type)
	req.Header.Set(HeaderTimestamp, ts)
	if len(c.secret) > 0 {
		req.Header.Set(HeaderSignature, SignWebhook(c.secret, ts, body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(b))
	}
	c.log.Debug("webhook delivered", zap.String("type", event.Type), zap.Int("status", resp.StatusCode))
	return nil
}

func SignWebhook(secret []byte, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
