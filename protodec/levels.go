package protodec

// thresholdLevels converts analog samples into boolean logic levels. A sample
// strictly above the threshold reads high.
func thresholdLevels(samples []float64, threshold float64) []bool {
	levels := make([]bool, len(samples))
	for i, s := range samples {
		levels[i] = s > threshold
	}
	return levels
}

// findEdge returns the index of the first transition to the wanted level at
// or after from, or -1 if none remains. The returned index is the first
// sample at the new level.
func findEdge(levels []bool, from int, want bool) int {
	if from < 0 {
		from = 0
	}
	if from >= len(levels) {
		return -1
	}
	prev := levels[from]
	for i := from + 1; i < len(levels); i++ {
		if levels[i] == want && prev != want {
			return i
		}
		prev = levels[i]
	}
	return -1
}

// sampleAt reads the level at a fractional sample index, or false,false when
// the index falls past the end of the sequence.
func sampleAt(levels []bool, idx float64) (bool, bool) {
	i := int(idx + 0.5)
	if i < 0 || i >= len(levels) {
		return false, false
	}
	return levels[i], true
}
