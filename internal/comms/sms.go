// Package comms holds the outbound channel adapters the outbox worker
// delivers through. Providers must tolerate repeated sends for the
// same message key without duplicate real-world effect.
package comms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
)

// Message is one outbound SMS. MessageKey is the outbox row's
// idempotency key so the provider can deduplicate on its side.
type Message struct {
	To         string
	Body       string
	MessageKey string
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	ProviderMessageID string
	Provider          string
	Status            string
	Note              string
}

// Adapter is the channel boundary. Send must be safe to invoke more
// than once for the same MessageKey.
type Adapter interface {
	Send(ctx context.Context, message Message) (SendResult, error)
}

// NewSmsAdapter builds the adapter matching the channel
// configuration: disabled, dry-run, or the deterministic stub. The
// returned adapter is wrapped with the bounded send timeout.
func NewSmsAdapter(cfg config.SmsConfig, timeout time.Duration, logger *zap.Logger) Adapter {
	var inner Adapter
	switch {
	case !cfg.Enabled:
		inner = disabledAdapter{}
	case cfg.DryRun:
		inner = dryRunAdapter{logger: logger}
	default:
		inner = stubAdapter{}
	}
	return timeoutAdapter{inner: inner, timeout: timeout}
}

// DeterministicMessageID derives a stable provider message id from
// the message identity, so retried sends produce the same id.
func DeterministicMessageID(messageKey, to, body string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", messageKey, to, body)))
	return hex.EncodeToString(sum[:])
}

func normalizeRecipient(to string) string {
	trimmed := strings.TrimSpace(to)
	if trimmed == "" {
		return "UNKNOWN_RECIPIENT"
	}
	return trimmed
}

type disabledAdapter struct{}

func (disabledAdapter) Send(_ context.Context, message Message) (SendResult, error) {
	to := normalizeRecipient(message.To)
	return SendResult{
		ProviderMessageID: DeterministicMessageID("disabled:"+message.MessageKey, to, message.Body),
		Provider:          "disabled",
		Status:            "disabled",
		Note:              "sms channel is disabled",
	}, nil
}

type dryRunAdapter struct {
	logger *zap.Logger
}

func (a dryRunAdapter) Send(_ context.Context, message Message) (SendResult, error) {
	to := normalizeRecipient(message.To)
	a.logger.Info("sms dry-run",
		zap.String("to", to),
		zap.String("message_key", message.MessageKey),
	)
	return SendResult{
		ProviderMessageID: DeterministicMessageID("dry-run:"+message.MessageKey, to, message.Body),
		Provider:          "dry-run",
		Status:            "dry-run",
		Note:              "dispatch_sms_dry_run_enabled",
	}, nil
}

type stubAdapter struct{}

func (stubAdapter) Send(_ context.Context, message Message) (SendResult, error) {
	to := normalizeRecipient(message.To)
	return SendResult{
		ProviderMessageID: DeterministicMessageID("stub:"+message.MessageKey, to, message.Body),
		Provider:          "stub-sms",
		Status:            "accepted",
		Note:              "stub because no real provider is configured",
	}, nil
}

// timeoutAdapter bounds every send. A timeout is a failure for
// retry/backoff purposes even though the delivery may still land; the
// idempotent message key absorbs that ambiguity.
type timeoutAdapter struct {
	inner   Adapter
	timeout time.Duration
}

func (a timeoutAdapter) Send(ctx context.Context, message Message) (SendResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type outcome struct {
		result SendResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := a.inner.Send(ctx, message)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return SendResult{}, fmt.Errorf("sms send timed out: %w", ctx.Err())
	case out := <-done:
		return out.result, out.err
	}
}
