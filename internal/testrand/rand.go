// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testrand implements generating random values for tests.
package testrand

import (
	"math/rand"

	"github.com/google/uuid"
)

// Intn returns, as an int, a non-negative pseudo-random number in [0,n).
// It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Int63n returns, as an int64, a non-negative pseudo-random number in [0,n).
// It panics if n <= 0.
func Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// BytesN generates size amount of random data.
func BytesN(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// DeviceUUID creates a random device uuid string.
func DeviceUUID() string {
	var id uuid.UUID
	Read(id[:])
	// mark it as a version 4, variant 1 uuid.
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}

const letters = "abcdefghijklmnopqrstuvwxyz"

// Name creates a random lowercase name of length n.
func Name(n int) string {
	data := make([]byte, n)
	for i := range data {
		data[i] = letters[rand.Intn(len(letters))]
	}
	return string(data)
}

// Value creates a random JSON scalar: a bool, an int64, a float64 or a string.
func Value() any {
	switch rand.Intn(4) {
	case 0:
		return rand.Intn(2) == 0
	case 1:
		return rand.Int63n(1 << 40)
	case 2:
		return rand.Float64()
	default:
		return Name(1 + rand.Intn(12))
	}
}
