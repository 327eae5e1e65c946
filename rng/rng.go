// Package rng provides the random sources used for sampling.
//
// There is no process-wide generator: every estimation call owns its sources,
// and parallel batches each get an independent stream derived from one seed.
package rng

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Source yields uniform values in [0, 1).
//
// A Source is not safe for concurrent use; each goroutine needs its own.
type Source interface {
	Float64() float64
}

// pcgSource wraps a PCG generator from math/rand/v2
type pcgSource struct {
	r *rand.Rand
}

// NewSeeded returns a deterministic Source for the given seed.
func NewSeeded(seed uint64) Source {
	return &pcgSource{r: rand.New(rand.NewPCG(seed, Mix(seed)))}
}

func (s *pcgSource) Float64() float64 { return s.r.Float64() }

// Substream derives the seed for stream index from a base seed.
// Distinct indices give well separated seeds, so batches drawn from
// NewSeeded(Substream(seed, i)) do not overlap or correlate.
func Substream(seed uint64, index int) uint64 {
	return Mix(seed + Mix(uint64(index)+1))
}

// Mix is the splitmix64 finalizer.
func Mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// EntropySeed reads a fresh seed from the operating system.
// It falls back to the runtime generator if the OS source is unavailable.
func EntropySeed() uint64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(buf[:])
}
