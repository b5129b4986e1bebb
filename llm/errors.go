// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ProviderError is returned when the API responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true for rate limit responses (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

// readProviderError parses the common provider error format:
// {"error":{"type":"...","message":"..."}}. Extra fields in the error
// object (OpenAI's "code" and "param") are silently ignored.
func readProviderError(statusCode int, body []byte) error {
	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: statusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	if len(body) > 512 {
		body = body[:512]
	}
	return &ProviderError{
		StatusCode: statusCode,
		Message:    string(body),
	}
}

// decodeBase64 accepts both standard and URL-safe alphabets; some
// compatible servers emit the latter.
func decodeBase64(data string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(data)
}
