package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leofalp/llmkit/providers/ai"
)

// ClassifyHTTPError maps a non-2xx response onto the error taxonomy:
//
//	401, 403          AuthFailed
//	429               RateLimited, retryable, RetryAfter from headers
//	404 (model)       NoSuchModel
//	400, 404, 422     InvalidRequest
//	408, 409, 5xx     ProviderTransient, retryable
//
// The provider's error message is extracted from the body when possible.
func ClassifyHTTPError(status int, header http.Header, body []byte) *ai.Error {
	message := ErrorMessageFromBody(body)
	if message == "" {
		message = http.StatusText(status)
	}

	err := &ai.Error{
		Message:    message,
		StatusCode: status,
		Body:       TruncateString(string(body), 2000),
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err.Kind = ai.KindAuthFailed
	case status == http.StatusTooManyRequests:
		err.Kind = ai.KindRateLimited
		err.Retryable = true
		err.RetryAfter = RetryAfterFromHeader(header, time.Now())
	case status == http.StatusNotFound && strings.Contains(strings.ToLower(message), "model"):
		err.Kind = ai.KindNoSuchModel
	case status == http.StatusRequestTimeout || status == http.StatusConflict || status >= 500:
		err.Kind = ai.KindProviderTransient
		err.Retryable = true
	default:
		err.Kind = ai.KindInvalidRequest
	}
	return err
}

// ErrorMessageFromBody extracts a human message from common provider error
// bodies: {"error":{"message":...}}, {"error":"..."} and {"message":...}.
func ErrorMessageFromBody(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(TruncateString(string(body), 500))
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	return envelope.Message
}

// ParseRetryAfter parses a Retry-After value given as delta-seconds or as an
// HTTP-date. Past dates and malformed values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// RetryAfterFromHeader prefers the millisecond header some providers send
// (retry-after-ms) over the standard Retry-After.
func RetryAfterFromHeader(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if ms := header.Get("Retry-After-Ms"); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
	}
	return ParseRetryAfter(header.Get("Retry-After"), now)
}
