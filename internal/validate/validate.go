// Package validate implements content validation, security screening and
// per-identity rate limiting for inbound client frames.
package validate

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxContentBytes caps plaintext content per frame.
	MaxContentBytes = 10000
	// MaxEncryptedBytes caps opaque encrypted payloads per frame.
	MaxEncryptedBytes = 50000
	// MaxRoomIdLen caps room identifier length.
	MaxRoomIdLen = 100
)

// ValidationError reports a frame that violates structural limits.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SecurityError reports a frame rejected by security screening.
type SecurityError struct {
	Field  string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("rejected %s: %s", e.Field, e.Reason)
}

// SanitizeContent strips control characters other than newline, carriage
// return and tab, then trims surrounding whitespace. Idempotent.
func SanitizeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

// ValidateMessage checks structural limits on an inbound frame.
func ValidateMessage(messageType, content, encryptedContent string) error {
	if messageType == "" {
		return &ValidationError{Field: "message_type", Reason: "cannot be empty"}
	}

	if len(content) > MaxContentBytes {
		return &ValidationError{Field: "content", Reason: "too large"}
	}

	if len(encryptedContent) > MaxEncryptedBytes {
		return &ValidationError{Field: "encrypted_content", Reason: "too large"}
	}

	return nil
}

// ValidateSecurity screens content for injection markers and enforces the
// room identifier format (alphanumeric and hyphen, at most MaxRoomIdLen).
func ValidateSecurity(content, roomId string) error {
	lowered := strings.ToLower(content)
	if strings.Contains(lowered, "<script") || strings.Contains(lowered, "javascript:") {
		return &SecurityError{Field: "content", Reason: "potentially malicious content"}
	}

	if roomId != "" {
		if len(roomId) > MaxRoomIdLen {
			return &SecurityError{Field: "room_id", Reason: "too long"}
		}
		for _, r := range roomId {
			if !isAlphanumeric(r) && r != '-' {
				return &SecurityError{Field: "room_id", Reason: "invalid characters"}
			}
		}
	}

	return nil
}

func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
