package fingerprint

import "math"

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}

// melFilterBank builds numMels triangular filters spanning 0..Nyquist over the
// windowSize/2+1 FFT bins. Weights are computed on bin frequencies in Hz so
// narrow low filters still overlap at least one bin partially.
func melFilterBank(numMels, windowSize, sampleRate int) [][]float64 {
	nBins := windowSize/2 + 1
	nyquist := float64(sampleRate) / 2

	lowMel := hzToMel(0)
	highMel := hzToMel(nyquist)
	edges := make([]float64, numMels+2)
	for i := range edges {
		edges[i] = melToHz(lowMel + float64(i)*(highMel-lowMel)/float64(numMels+1))
	}

	binHz := float64(sampleRate) / float64(windowSize)
	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		weights := make([]float64, nBins)
		for k := 0; k < nBins; k++ {
			f := float64(k) * binHz
			rising := (f - left) / (center - left)
			falling := (right - f) / (right - center)
			if w := math.Min(rising, falling); w > 0 {
				weights[k] = w
			}
		}
		bank[m] = weights
	}
	return bank
}
