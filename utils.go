// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package courier

import (
	"crypto/sha256"
)

const (
	// KiB is 1024 bytes
	KiB = 1024
)

// ComputeHash256 computes the SHA-256 hash of data
func ComputeHash256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// ComputeHash256Array computes the SHA-256 hash of data as an array
func ComputeHash256Array(data []byte) [32]byte {
	return sha256.Sum256(data)
}
