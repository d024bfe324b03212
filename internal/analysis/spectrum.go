// Package analysis post-processes recorded trajectories: frequency content
// of individual coordinates and phase-plane portraits.
package analysis

import (
	"math"
	"math/cmplx"
)

// FFT computes the discrete Fourier transform by radix-2 decimation. The
// input length must be a power of two; callers trim with [PowerOfTwo].
func FFT(data []float64) []complex128 {
	n := len(data)
	if n <= 1 {
		result := make([]complex128, n)
		for i := range data {
			result[i] = complex(data[i], 0)
		}
		return result
	}

	if n%2 != 0 {
		panic("fft requires power of 2 length")
	}

	even := make([]float64, n/2)
	odd := make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = data[2*i]
		odd[i] = data[2*i+1]
	}

	feven := FFT(even)
	fodd := FFT(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		w := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
		result[k] = feven[k] + w*fodd[k]
		result[k+n/2] = feven[k] - w*fodd[k]
	}
	return result
}

// PowerOfTwo returns the largest power-of-two prefix length of n.
func PowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// PowerSpectrum is the single-sided magnitude spectrum of data, mean
// removed, truncated to a power-of-two length.
func PowerSpectrum(data []float64) []float64 {
	n := PowerOfTwo(len(data))
	if n < 2 {
		return nil
	}
	mean := 0.0
	for _, v := range data[:n] {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range data[:n] {
		centered[i] = v - mean
	}

	fft := FFT(centered)
	ps := make([]float64, n/2)
	for i := range ps {
		ps[i] = cmplx.Abs(fft[i])
	}
	return ps
}

// DominantFrequency picks the strongest spectral line of a uniformly sampled
// signal, in Hz. Returns 0 for signals too short to analyze.
func DominantFrequency(data []float64, dt float64) float64 {
	ps := PowerSpectrum(data)
	if len(ps) < 2 || dt <= 0 {
		return 0
	}
	best, bestMag := 0, 0.0
	for i := 1; i < len(ps); i++ { // skip DC
		if ps[i] > bestMag {
			best, bestMag = i, ps[i]
		}
	}
	n := 2 * len(ps)
	return float64(best) / (float64(n) * dt)
}
