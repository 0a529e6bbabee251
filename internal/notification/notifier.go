// Package notification delivers signal events and operational alerts to
// external channels (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"supertrend-engine/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Signal  *model.Signal `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert formats a signal as an alert. Sell signals are warnings.
func SignalAlert(sig model.Signal) Alert {
	level := AlertInfo
	if strings.HasSuffix(string(sig.Kind), "-sell") || sig.Kind == model.SignalDayLowBreakdown {
		level = AlertWarning
	}
	msg := fmt.Sprintf("%s at %.2f (%s)", sig.Symbol, sig.LastPrice, sig.TS.Format("15:04:05"))
	if sig.Reason != "" {
		msg += ": " + sig.Reason
	}
	return Alert{
		Level:   level,
		Title:   string(sig.Kind),
		Message: msg,
		Signal:  &sig,
	}
}

// SignalSink adapts a Notifier to model.SignalSink.
type SignalSink struct {
	n Notifier
}

// NewSignalSink wraps n.
func NewSignalSink(n Notifier) *SignalSink {
	return &SignalSink{n: n}
}

// PublishSignal sends the signal as an alert.
func (s *SignalSink) PublishSignal(ctx context.Context, sig model.Signal) error {
	return s.n.Send(ctx, SignalAlert(sig))
}
