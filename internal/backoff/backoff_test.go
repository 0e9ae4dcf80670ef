package backoff

import (
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestDelayIsExponentialAndCapped(t *testing.T) {
	base := 200 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, Delay(base, 0, 5*time.Second))
	assert.Equal(t, 800*time.Millisecond, Delay(base, 2, 5*time.Second))
	assert.Equal(t, 5*time.Second, Delay(base, 10, 5*time.Second))
	assert.Equal(t, base, Delay(base, -3, 0))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, Retryable(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, Retryable(&openai.APIError{HTTPStatusCode: 401}))
	assert.False(t, Retryable(&openai.RequestError{HTTPStatusCode: 400, Err: errors.New("bad")}))
}
