package mock

import "unicode/utf16"

// Rand is a mulberry32 generator seeded from a string, so a seed name
// always yields the same fixture.
type Rand struct {
	state uint32
}

func NewRand(seed string) *Rand {
	return &Rand{state: hashSeed(seed)}
}

// hashSeed is the 31-multiplier string hash over UTF-16 code units.
func hashSeed(seed string) uint32 {
	var h uint32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + uint32(c)
	}
	return h
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.state += 0x6d2b79f5
	t := (r.state ^ (r.state >> 15)) * (1 | r.state)
	t ^= t + (t^(t>>7))*(61|t)
	return float64(t^(t>>14)) / 4294967296
}

// Intn returns a value in [min, max].
func (r *Rand) Intn(min, max int) int {
	return int(r.Float64()*float64(max-min+1)) + min
}

func (r *Rand) Digits(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + r.Intn(0, 9))
	}
	return string(b)
}

func pick[T any](r *Rand, list []T) T {
	return list[int(r.Float64()*float64(len(list)))]
}
