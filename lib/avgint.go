package lib

import "math"

// AverageInt64 compute statistical mean and variance over samples,
// used to account requested allocation sizes.
type AverageInt64 struct {
	n      int64
	minval int64
	maxval int64
	sum    int64
	sumsq  float64
	init   bool
}

// Add a sample.
func (av *AverageInt64) Add(sample int64) {
	av.n++
	av.sum += sample
	f := float64(sample)
	av.sumsq += f * f
	if av.init == false || sample < av.minval {
		av.minval = sample
		av.init = true
	}
	if av.maxval < sample {
		av.maxval = sample
	}
}

// Merge samples accounted by other into av.
func (av *AverageInt64) Merge(other *AverageInt64) {
	if other == nil || other.n == 0 {
		return
	}
	if av.init == false || other.minval < av.minval {
		av.minval = other.minval
		av.init = true
	}
	if av.maxval < other.maxval {
		av.maxval = other.maxval
	}
	av.n += other.n
	av.sum += other.sum
	av.sumsq += other.sumsq
}

func (av *AverageInt64) Min() int64 {
	return av.minval
}

func (av *AverageInt64) Max() int64 {
	return av.maxval
}

func (av *AverageInt64) Samples() int64 {
	return av.n
}

func (av *AverageInt64) Sum() int64 {
	return av.sum
}

func (av *AverageInt64) Mean() int64 {
	if av.n == 0 {
		return 0
	}
	return int64(float64(av.sum) / float64(av.n))
}

func (av *AverageInt64) Variance() int64 {
	if av.n == 0 {
		return 0
	}
	nF, meanF := float64(av.n), float64(av.Mean())
	return int64((av.sumsq / nF) - (meanF * meanF))
}

func (av *AverageInt64) SD() int64 {
	if av.n == 0 {
		return 0
	}
	return int64(math.Sqrt(float64(av.Variance())))
}

// Clone copies the entire instance.
func (av *AverageInt64) Clone() *AverageInt64 {
	newav := (*av)
	return &newav
}

// Stats return a map of statistics.
func (av *AverageInt64) Stats() map[string]interface{} {
	return map[string]interface{}{
		"samples":     av.Samples(),
		"min":         av.Min(),
		"max":         av.Max(),
		"mean":        av.Mean(),
		"variance":    av.Variance(),
		"stddeviance": av.SD(),
	}
}
