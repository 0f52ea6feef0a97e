package crypto

// Random numbers with a given upper bound using a cryptographically secure
// random number generator based on
// Daniel Lemire, Fast Random Integer Generation in an Interval
// ACM Transactions on Modeling and Computer Simulation 29 (1), 2019
// https://lemire.me/en/publication/arxiv1805/

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"math"
)

func randInt31(ctx context.Context, n int) (int, error) {
	if n < 2 {
		return 0, nil
	}
	if n > math.MaxInt32 {
		panic("invalid argument: n must not be greater than 2147483647")
	}
	t := uint32(-n) % uint32(n)
	b := make([]byte, 4)
	var x uint32
	for {
		n, err := rand.Read(b)
		if err != nil {
			return 0, err
		}
		if n != len(b) {
			panic("unexpected result from random number generator")
		}
		x = binary.LittleEndian.Uint32(b)
		if x > t {
			break
		}
		err = ctx.Err()
		if err != nil {
			return 0, err
		}
	}
	return int(x % uint32(n)), nil
}

func randInt63(ctx context.Context, n int) (int, error) {
	if n < 2 {
		return 0, nil
	}
	t := uint64(-n) % uint64(n)
	b := make([]byte, 8)
	var x uint64
	for {
		n, err := rand.Read(b)
		if err != nil {
			return 0, err
		}
		if n != len(b) {
			panic("unexpected result from random number generator")
		}
		x = binary.LittleEndian.Uint64(b)
		if x > t {
			break
		}
		err = ctx.Err()
		if err != nil {
			return 0, err
		}
	}
	return int(x % uint64(n)), nil
}

func RandIntn(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		panic("invalid argument: n must be greater than 0")
	}
	if n <= math.MaxInt32 {
		return randInt31(ctx, n)
	}
	return randInt63(ctx, n)
}

// RandBytes returns n bytes from the system's secure random number generator.
func RandBytes(n int) ([]byte, error) {
	if n < 0 {
		panic("invalid argument: n must be non-negative")
	}
	b := make([]byte, n)
	m, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	if m != len(b) {
		panic("unexpected result from random number generator")
	}
	return b, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
