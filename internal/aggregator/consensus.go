package aggregator

import "math"

// weightedPrice computes sum(price_i * weight_i) / sum(weight_i) over the
// succeeding sources only. Weights are not renormalized: a cycle with fewer
// successes just uses a smaller denominator.
func weightedPrice(prices, weights []float64) float64 {
	var num, den float64
	for i := range prices {
		num += prices[i] * weights[i]
		den += weights[i]
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// stddev computes the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// confidence combines source diversity with price agreement, 0.5/0.5.
// Agreement is measured on raw prices, so it is scale-dependent across
// instruments with very different absolute price levels; kept as-is, a known
// limitation. With fewer than two succeeding sources there is no agreement to
// measure and that factor contributes zero. Clamped to [0.3, 1.0] because a
// single successful source is still usable, just low-confidence.
func confidence(successCount, totalSources int, prices []float64, weighted float64) float64 {
	if successCount == 0 || totalSources == 0 {
		return 0
	}

	diversity := float64(successCount) / float64(totalSources)
	if diversity > 1 {
		diversity = 1
	}

	agreement := 0.0
	if len(prices) >= 2 && weighted > 0 {
		rel := stddev(prices) / weighted
		agreement = 1 - 10*rel
		if agreement < 0 {
			agreement = 0
		}
	}

	conf := 0.5*diversity + 0.5*agreement
	if conf < 0.3 {
		conf = 0.3
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
