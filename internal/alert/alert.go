package alert

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
)

var ErrNotification = errors.New("notification failed")

type Provider interface {
	Send(ctx context.Context, text string) error
}

func GetProvider(cfg models.AlertConfig, timeout time.Duration) (Provider, error) {
	url := cfg.Settings["url"]
	if url == "" {
		return nil, fmt.Errorf("%w: %s provider has no url", ErrNotification, cfg.Type)
	}
	client := resty.New().SetTimeout(timeout)

	switch cfg.Type {
	case "googlechat", "":
		return &GoogleChatProvider{URL: url, client: client}, nil
	case "slack":
		return &SlackProvider{URL: url, client: client}, nil
	case "discord":
		return &DiscordProvider{URL: url, client: client}, nil
	case "webhook":
		return &WebhookProvider{URL: url, client: client}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider type %q", ErrNotification, cfg.Type)
	}
}

func post(ctx context.Context, client *resty.Client, url string, payload any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrNotification, code, resp.String())
	}
	return nil
}

// --- GOOGLE CHAT ---
type GoogleChatProvider struct {
	URL    string
	client *resty.Client
}

func (g *GoogleChatProvider) Send(ctx context.Context, text string) error {
	return post(ctx, g.client, g.URL, map[string]string{"text": text})
}

// --- SLACK ---
type SlackProvider struct {
	URL    string
	client *resty.Client
}

func (s *SlackProvider) Send(ctx context.Context, text string) error {
	return post(ctx, s.client, s.URL, map[string]string{"text": text})
}

// --- DISCORD ---
type DiscordProvider struct {
	URL    string
	client *resty.Client
}

func (d *DiscordProvider) Send(ctx context.Context, text string) error {
	return post(ctx, d.client, d.URL, map[string]string{"content": text})
}

// --- GENERIC WEBHOOK ---
type WebhookProvider struct {
	URL    string
	client *resty.Client
}

func (w *WebhookProvider) Send(ctx context.Context, text string) error {
	return post(ctx, w.client, w.URL, map[string]string{
		"text":   text,
		"status": "alert",
	})
}

// Notifier delivers alerts through a Provider and swallows every failure.
type Notifier struct {
	provider Provider
	log      *log.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

func NewNotifier(p Provider, logger *log.Logger) *Notifier {
	return &Notifier{provider: p, log: logger.WithPrefix("alert")}
}

// Notify sends text and reports whether delivery succeeded. It never panics
// and never blocks the caller beyond the provider timeout.
func (n *Notifier) Notify(ctx context.Context, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("notification provider panicked", "panic", r)
			ok = false
		}
		if ok {
			n.sent.Add(1)
			metrics.AlertsTotal.WithLabelValues(metrics.ResultOK).Inc()
		} else {
			n.failed.Add(1)
			metrics.AlertsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		}
	}()

	n.log.Info("sending alert", "text", text)
	if n.provider == nil {
		n.log.Warn("no notification provider configured, skipping alert")
		return false
	}
	if err := n.provider.Send(ctx, text); err != nil {
		n.log.Error("failed to send alert", "err", err)
		return false
	}
	return true
}

func (n *Notifier) Sent() int64   { return n.sent.Load() }
func (n *Notifier) Failed() int64 { return n.failed.Load() }
