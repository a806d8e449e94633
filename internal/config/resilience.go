package config

import (
	"errors"
	"time"

	"upwork_sheet_sync/internal/retry"
	"upwork_sheet_sync/internal/syncerr"
)

type ResilienceConfig struct {
	SheetRead     retry.Config
	SheetWrite    retry.Config
	TemplateClone retry.Config
}

// DefaultResilienceConfig builds the retry profiles. readTimeout bounds each
// header, inventory and key-map read.
func DefaultResilienceConfig(readTimeout time.Duration) ResilienceConfig {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return ResilienceConfig{
		SheetRead: retry.Config{
			MaxRetries: 2,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
			Timeout:    readTimeout,
			Retryable:  IsTransient,
		},
		// Batch writes are not idempotent for appended rows, so they are never
		// repeated blindly.
		SheetWrite: retry.Config{
			MaxRetries: 0,
			Timeout:    60 * time.Second,
			Retryable:  IsTransient,
		},
		TemplateClone: retry.Config{
			MaxRetries: 1,
			BaseDelay:  2 * time.Second,
			MaxDelay:   10 * time.Second,
			Timeout:    60 * time.Second,
			Retryable:  IsTransient,
		},
	}
}

// IsTransient reports rate limiting, server and network failures.
func IsTransient(err error) bool {
	var se *syncerr.Error
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return false
}
