package memutils

import (
	"math"
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// RoundUp rounds value up to a multiple of any non-zero multiple
func RoundUp[T Number](value T, multiple T) T {
	return (value + multiple - 1) / multiple * multiple
}

// RoundDown rounds value down to a multiple of any non-zero multiple
func RoundDown[T Number](value T, multiple T) T {
	return value / multiple * multiple
}

// LeastCommonAlignment returns the smallest alignment that satisfies both a and b. An alignment
// of 0 means "no preference". The result saturates at math.MaxUint64.
func LeastCommonAlignment(a, b uint64) uint64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}

	x, y := a, b
	for y != 0 {
		x, y = y, x%y
	}

	hi, lo := bits.Mul64(a/x, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// AddOverflows reports whether a+b wraps around a uint64
func AddOverflows(a, b uint64) bool {
	_, carry := bits.Add64(a, b, 0)
	return carry != 0
}

// Max returns the larger of a and b
func Max[T Number](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min[T Number](a, b T) T {
	if a < b {
		return a
	}
	return b
}
