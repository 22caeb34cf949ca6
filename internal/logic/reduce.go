package logic

// Mean returns the arithmetic mean of values and false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Mode returns the most frequent label that is not sentinel.
// Among equally frequent labels the most recently seen one wins.
// It returns false when labels is empty or contains only the sentinel.
func Mode(labels []string, sentinel string) (string, bool) {
	counts := make(map[string]int, len(labels))
	best := 0
	for _, l := range labels {
		if l == sentinel {
			continue
		}
		counts[l]++
		if counts[l] > best {
			best = counts[l]
		}
	}
	if best == 0 {
		return "", false
	}
	for i := len(labels) - 1; i >= 0; i-- {
		if l := labels[i]; l != sentinel && counts[l] == best {
			return l, true
		}
	}
	return "", false
}

// IndicatorOn decides the auxiliary indicator for one round: on when the room
// is brighter than threshold or the wearer sensor reports no pulse.
func IndicatorOn(brightness, heartRate, threshold float64) bool {
	return brightness > threshold || heartRate == 0
}
