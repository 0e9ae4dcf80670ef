// Package backoff holds the retry policy shared by the OpenAI-compatible clients.
package backoff

import (
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Delay returns base<<attempt capped at limit.
func Delay(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base << attempt
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// Retryable reports whether err is worth another attempt: rate limiting,
// server-side failures and transport errors are; client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 || code == 0
}
