package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/codenames-server/pkg/sessiondto"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Webhook POSTs snapshots to {baseURL}/sessions/{id}/snapshot, e.g. a pub/sub bridge.
type Webhook struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	view    sessiondto.View

	timeout  time.Duration
	retryMax uint
	logger   *zap.Logger
}

type WebhookOption func(*Webhook)

func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.timeout = d }
}

func WithRetry(max int) WebhookOption {
	return func(w *Webhook) {
		if max > 0 {
			w.retryMax = uint(max)
		}
	}
}

func WithHeaderProvider(h HeaderProvider) WebhookOption {
	return func(w *Webhook) { w.headers = h }
}

// WithWebhookView sets how much of the color key leaves the process.
// The default is PublicView.
func WithWebhookView(v sessiondto.View) WebhookOption {
	return func(w *Webhook) { w.view = v }
}

func WithWebhookLogger(l *zap.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWebhook(baseURL string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		timeout:  5 * time.Second,
		view:     sessiondto.PublicView,
		retryMax: 3,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook error: status=%d body=%s", e.status, e.body)
}

func (w *Webhook) Push(ctx context.Context, sessionID string, snap *sessiondto.Snapshot) error {
	if snap == nil {
		return nil
	}
	if w.view == sessiondto.PublicView {
		snap = publicCopy(snap)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	url := w.baseURL + "/sessions/" + sessionID + "/snapshot"

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := w.post(ctx, url, payload)
		if err == nil {
			return struct{}{}, nil
		}
		if se, ok := err.(*statusError); ok && !shouldRetryStatus(se.status) {
			return struct{}{}, backoff.Permanent(err)
		}
		w.logger.Debug("webhook_retry", zap.String("session_id", sessionID), zap.Int("attempt", attempt), zap.Error(err))
		return struct{}{}, err
	},
		backoff.WithBackOff(webhookBackOff()),
		backoff.WithMaxTries(w.retryMax),
	)
	if err != nil {
		return fmt.Errorf("push snapshot %s: %w", sessionID, err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, url string, payload []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if w.headers != nil {
		for k, v := range w.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	req.SetBody(payload)

	if err := w.http.DoDeadline(req, resp, w.deadline(ctx)); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return &statusError{status: status, body: truncate(string(resp.Body()), 512)}
	}
	return nil
}

func (w *Webhook) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(w.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func webhookBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
