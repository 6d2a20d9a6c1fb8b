package math

import (
	"image/color"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// NewVec4FromColor converts an 8-bit colour (for example one of x/image/colornames)
// into a normalized RGBA vector.
func NewVec4FromColor(c color.RGBA) Vec4 {
	return Vec4{
		X: float32(c.R) / 255.0,
		Y: float32(c.G) / 255.0,
		Z: float32(c.B) / 255.0,
		W: float32(c.A) / 255.0,
	}
}

// Random is a seeded pseudo random source for simulation code.
type Random struct {
	r *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

// IntRange returns a value in [min, max].
func (r *Random) IntRange(min, max int) int {
	return min + r.r.Intn(max-min+1)
}

// FloatRange returns a value in [min, max).
func (r *Random) FloatRange(min, max float32) float32 {
	return min + r.r.Float32()*(max-min)
}
