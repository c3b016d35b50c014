package fingerprint

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
)

func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FFT computes the discrete Fourier transform of x in place using the
// iterative radix-2 Cooley-Tukey algorithm. The result is in natural
// frequency order. len(x) must be a power of two; anything else panics.
func FFT(x []complex128) {
	n := len(x)
	if !IsPowerOfTwo(n) {
		panic(fmt.Sprintf("fingerprint: FFT length %d is not a power of two", n))
	}
	if n == 1 {
		return
	}

	bitReverse(x)

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angle := -2 * math.Pi / float64(size)
		wlen := complex(math.Cos(angle), math.Sin(angle))

		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := x[start+k]
				v := w * x[start+k+half]
				x[start+k] = u + v
				x[start+k+half] = u - v
				w *= wlen
			}
		}
	}
}

// InverseFFT computes the inverse transform in place via the conjugate
// trick: conj, forward FFT, conj, scale by 1/n.
func InverseFFT(x []complex128) {
	for i := range x {
		x[i] = cmplx.Conj(x[i])
	}
	FFT(x)
	scale := 1 / float64(len(x))
	for i := range x {
		x[i] = cmplx.Conj(x[i]) * complex(scale, 0)
	}
}

// bitReverse swaps every element with the one whose index is its
// bit-reversal over log2(n) bits. Each pair is swapped once.
func bitReverse(x []complex128) {
	n := len(x)
	shift := bits.UintSize - bits.TrailingZeros(uint(n))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse(uint(i)) >> shift)
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
}

// MagnitudeSpectrum writes |X[k]| for the first len(x)/2 bins into out,
// allocating when out is too small. Only those bins carry information for
// a real-valued input.
func MagnitudeSpectrum(x []complex128, out []float64) []float64 {
	half := len(x) / 2
	if cap(out) < half {
		out = make([]float64, half)
	}
	out = out[:half]
	for i := 0; i < half; i++ {
		out[i] = cmplx.Abs(x[i])
	}
	return out
}
