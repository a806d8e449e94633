package notifications

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	PriorityDefault = "default"
	PriorityUrgent  = "urgent"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	topic      string
	enabled    bool
	priority   string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	// Circuit breaker state
	failures    int
	lastFailure time.Time
	circuitOpen bool
	mutex       sync.Mutex
	// Metrics
	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

// RunSummary is what a finished reconciliation reports.
type RunSummary struct {
	Operation     string
	OperationID   string
	Tab           string
	Added         int
	Updated       int
	Missing       int
	Formatting    bool
	NewDuplicates []string
	Error         string
}

type NotificationError struct {
	Type       string
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s] attempt %d: %v", e.Type, e.Attempt, e.Underlying)
}

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "timeout", "rate_limit":
		return true
	case "auth", "client":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(baseURL, topic string, enabled bool, priority string, maxRetries int, baseDelay, maxDelay time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		topic:      topic,
		enabled:    enabled,
		priority:   priority,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// NotifyRun posts a one-message summary of a run. Runs that introduced
// duplicate job ids or failed are sent as urgent.
func (c *Client) NotifyRun(ctx context.Context, summary RunSummary) error {
	if !c.enabled {
		return nil
	}
	if summary.Error == "" && summary.Added == 0 && summary.Updated == 0 {
		log.Debug().Str("operation", summary.Operation).Msg("Nothing written, skipping notification")
		return nil
	}

	priority := c.priority
	title := "Sheet sync: " + summary.Operation
	if len(summary.NewDuplicates) > 0 || summary.Error != "" {
		priority = PriorityUrgent
		title = "Sheet sync problem: " + summary.Operation
	}

	log.Info().
		Str("operation", summary.Operation).
		Str("operation_id", summary.OperationID).
		Msg("Sending run notification")
	return c.send(ctx, title, formatSummary(summary), priority)
}

// SendNotification posts a plain message with the configured priority.
func (c *Client) SendNotification(ctx context.Context, message string) error {
	return c.send(ctx, "", message, c.priority)
}

func (c *Client) send(ctx context.Context, title, message, priority string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{
			Type:       "circuit_open",
			Underlying: fmt.Errorf("circuit breaker is open"),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying notification after delay")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.incrementRetries()
		}

		err := c.sendSingleNotification(ctx, title, message, priority, attempt+1)
		if err == nil {
			c.recordSuccess()
			return nil
		}

		lastErr = err
		if notifErr, ok := err.(*NotificationError); ok && !notifErr.IsRetryable() {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Msg("Non-retryable error, giving up")
			c.recordFailure()
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Msg("Notification attempt failed")
	}

	c.recordFailure()
	return &NotificationError{
		Type:       "max_retries_exceeded",
		Attempt:    c.maxRetries + 1,
		Underlying: lastErr,
	}
}

func (c *Client) sendSingleNotification(ctx context.Context, title, message, priority string, attempt int) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)

	log.Debug().
		Str("url", url).
		Int("attempt", attempt).
		Msg("Sending notification")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{Type: "client", Attempt: attempt, Underlying: err}
	}

	req.Header.Set("Content-Type", "text/plain")
	if priority != "" {
		req.Header.Set("Priority", priority)
	}
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{Type: "network", Attempt: attempt, Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       c.categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Int("attempt", attempt).
		Msg("Notification sent successfully")
	return nil
}

func formatSummary(s RunSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tab %s\n", s.Tab))
	if s.Added > 0 {
		sb.WriteString(fmt.Sprintf("Added %d row(s)\n", s.Added))
	}
	if s.Updated > 0 {
		sb.WriteString(fmt.Sprintf("Updated %d row(s)\n", s.Updated))
	}
	if s.Missing > 0 {
		sb.WriteString(fmt.Sprintf("%d record(s) not found in the sheet\n", s.Missing))
	}
	if !s.Formatting {
		sb.WriteString("Row formatting skipped\n")
	}

	const maxKeysToShow = 10
	if n := len(s.NewDuplicates); n > 0 {
		shown := s.NewDuplicates
		if n > maxKeysToShow {
			shown = shown[:maxKeysToShow]
		}
		sb.WriteString(fmt.Sprintf("New duplicate job ids: %s", strings.Join(shown, ", ")))
		if n > maxKeysToShow {
			sb.WriteString(fmt.Sprintf(" and %d more", n-maxKeysToShow))
		}
		sb.WriteString("\n")
	}
	if s.Error != "" {
		sb.WriteString("Error: " + s.Error + "\n")
	}
	sb.WriteString("Run " + s.OperationID)
	return sb.String()
}

// Circuit breaker and retry helper methods

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}

	// Half-open after 30s: let the next attempt through.
	if time.Since(c.lastFailure) > 30*time.Second {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	// Open circuit breaker after 5 consecutive failures
	if c.failures >= 5 && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	base := float64(c.baseDelay)
	backoff := base * math.Pow(2, float64(attempt-1))

	// Add jitter (±25%)
	jitter := rand.Float64()*0.5 - 0.25
	backoff = backoff * (1 + jitter)

	if maxBackoff := float64(c.maxDelay); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

func (c *Client) categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed, retries int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed, c.totalRetries
}
