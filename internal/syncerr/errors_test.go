package syncerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatusCategorizesAuth(t *testing.T) {
	for _, code := range []int{401, 403} {
		err := FromStatus("write batch", code, errors.New("denied"))
		assert.Equal(t, KindAuthFailure, err.Kind)
		assert.Equal(t, code, err.StatusCode)
		assert.False(t, err.IsRetryable())
	}

	err := FromStatus("write batch", 500, errors.New("backend"))
	assert.Equal(t, KindSheetUnreachable, err.Kind)
	assert.True(t, err.IsRetryable())

	err = FromStatus("write batch", 400, errors.New("bad range"))
	assert.False(t, err.IsRetryable())

	assert.True(t, FromStatus("read", 429, errors.New("quota")).IsRetryable())
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	original := New(KindSchemaIncomplete, "resolve headers", "no Job ID column")
	wrapped := fmt.Errorf("failed to add jobs: %w", original)

	assert.Same(t, wrapped, Classify("other", wrapped))
	assert.True(t, Is(wrapped, KindSchemaIncomplete))
	assert.Equal(t, KindSchemaIncomplete, KindOf(wrapped))
}

func TestClassifyDeadline(t *testing.T) {
	err := Classify("scan rows", fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.True(t, Is(err, KindTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	err = Classify("scan rows", errors.New("connection reset"))
	assert.True(t, Is(err, KindSheetUnreachable))
	assert.Nil(t, Classify("noop", nil))
}

func TestErrorMessageAndHelpers(t *testing.T) {
	err := FromStatus("write batch", 503, errors.New("unavailable"))
	assert.Equal(t, "write batch [sheet_unreachable] status 503: unavailable", err.Error())
	assert.Equal(t, 503, StatusCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))

	assert.True(t, IsBenign(New(KindNoMatchingRows, "add jobs", "nothing to add")))
	assert.False(t, IsBenign(err))
}
