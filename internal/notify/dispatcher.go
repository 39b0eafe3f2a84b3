// Package notify routes check-in events to Telegram group chats.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/metrics"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"
)

// DefaultAPIURL is the Telegram Bot API base URL.
const DefaultAPIURL = "https://api.telegram.org"

// ParseModeHTML asks Telegram to render the text as HTML.
const ParseModeHTML = "HTML"

// Failure reasons, logged and counted but never returned by Dispatch.
const (
	ReasonMissingToken       = "missing_token"
	ReasonMissingDestination = "missing_destination"
	ReasonRequest            = "request"
	ReasonHTTPStatus         = "http_status"
	ReasonDecode             = "decode"
	ReasonRejected           = "rejected"
	ReasonPanic              = "panic"
)

const maxResponseBytes = 1 << 20

// Config holds the bot credential and the two destination chats.
type Config struct {
	BotToken     string
	MemberChatID string
	GuestChatID  string
	APIURL       string
	Timeout      time.Duration
}

// DeliveryError carries the internal failure reason of a dispatch.
type DeliveryError struct {
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver [%s]: %v", e.Reason, e.Err)
	}
	return "deliver [" + e.Reason + "]"
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SendMessageRequest is the sendMessage payload.
type SendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Dispatcher sends one formatted message per check-in. It makes a single attempt.
type Dispatcher struct {
	cfg        Config
	router     Router
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return &Dispatcher{
		cfg:        cfg,
		router:     NewRouter(cfg.MemberChatID, cfg.GuestChatID),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		logger:     logger,
	}
}

// Dispatch delivers the event and reports whether Telegram acknowledged it.
// All failures, including panics, are logged and reported as false.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.CheckInEvent) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panicked", zap.Any("panic", r))
			d.metrics.ObserveDispatch(ReasonPanic)
			ok = false
		}
	}()

	err := d.deliver(ctx, event)
	if err != nil {
		reason := ReasonRequest
		var de *DeliveryError
		if errors.As(err, &de) {
			reason = de.Reason
		}
		d.logger.Error("check-in notification failed",
			zap.String("reason", reason),
			zap.String("attendee_type", event.AttendeeType.String()),
			zap.String("token", MaskToken(d.cfg.BotToken)),
			zap.Error(err),
		)
		d.metrics.ObserveDispatch(reason)
		return false
	}

	d.logger.Info("check-in notification sent", zap.String("attendee_type", event.AttendeeType.String()))
	d.metrics.ObserveDispatch("")
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, event models.CheckInEvent) error {
	if d.cfg.BotToken == "" {
		return &DeliveryError{Reason: ReasonMissingToken}
	}
	chatID := d.router.Route(event.AttendeeType)
	if chatID == "" {
		return &DeliveryError{Reason: ReasonMissingDestination}
	}

	body, err := json.Marshal(SendMessageRequest{
		ChatID:    chatID,
		Text:      FormatMessage(event),
		ParseMode: ParseModeHTML,
	})
	if err != nil {
		return &DeliveryError{Reason: ReasonRequest, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	endpoint := strings.TrimRight(d.cfg.APIURL, "/") + "/bot" + d.cfg.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Reason: ReasonRequest, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of the logged error.
		return &DeliveryError{Reason: ReasonRequest, Err: redact(err, d.cfg.BotToken)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &DeliveryError{Reason: ReasonRequest, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Reason: ReasonHTTPStatus, Err: fmt.Errorf("telegram status %d: %s", resp.StatusCode, truncate(raw, 256))}
	}

	var result sendMessageResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return &DeliveryError{Reason: ReasonDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !result.OK {
		return &DeliveryError{Reason: ReasonRejected, Err: fmt.Errorf("telegram: %s", result.Description)}
	}
	return nil
}

// MaskToken shortens a credential for logs.
func MaskToken(token string) string {
	if token == "" {
		return "undefined"
	}
	if len(token) <= 10 {
		return "..."
	}
	return token[:10] + "..."
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, MaskToken(token)))
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
