// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxGreetingLen bounds the greeting payload, in bytes
const MaxGreetingLen = 512

var (
	ErrInvalidUTF8     = errors.New("payload is not valid UTF-8")
	ErrGreetingTooLong = errors.New("greeting too long")
)

// EncodeGreeting encodes a greeting into its wire payload. The payload
// is the raw UTF-8 bytes of the text; decoding must reproduce the text
// byte for byte.
func EncodeGreeting(text string) []byte {
	return []byte(text)
}

// DecodeGreeting decodes a greeting wire payload
func DecodeGreeting(b []byte) (string, error) {
	if len(b) > MaxGreetingLen {
		return "", fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrGreetingTooLong, len(b), MaxGreetingLen)
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
