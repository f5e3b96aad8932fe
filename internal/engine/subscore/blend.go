package subscore

// component is one weighted input to a sub-score blend. Unavailable
// components have their weight redistributed proportionally across the rest.
type component struct {
	name   string
	value  float64
	weight float64
	ok     bool
}

// blend computes the weighted average of the available components, scaled so
// the available weights sum to 1. It returns the blended value in [0,1], the
// names of the missing components, and false when nothing was available.
func blend(components []component) (float64, []string, bool) {
	var sum, weightSum float64
	var missing []string
	for _, c := range components {
		if !c.ok {
			missing = append(missing, c.name)
			continue
		}
		sum += c.value * c.weight
		weightSum += c.weight
	}
	if weightSum == 0 {
		return 0, missing, false
	}
	return sum / weightSum, missing, true
}
