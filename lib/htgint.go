package lib

import "fmt"
import "sort"
import "strconv"
import "strings"
import "math/bits"

// HistogramLog2 statistical histogram over power-of-two buckets. Bucket
// `i` counts samples in the range (2^(i-1), 2^i], bucket 0 counts
// samples <= 1.
type HistogramLog2 struct {
	n       int64
	minval  int64
	maxval  int64
	sum     int64
	init    bool
	buckets [65]int64
}

// NewhistogramLog2 return a new histogram object.
func NewhistogramLog2() *HistogramLog2 {
	return &HistogramLog2{}
}

// Add a sample to this histogram.
func (h *HistogramLog2) Add(sample int64) {
	h.n++
	h.sum += sample
	if h.init == false || sample < h.minval {
		h.minval = sample
		h.init = true
	}
	if h.maxval < sample {
		h.maxval = sample
	}
	h.buckets[bucketof(sample)]++
}

// Merge samples from other histogram into this histogram.
func (h *HistogramLog2) Merge(other *HistogramLog2) {
	if other == nil || other.n == 0 {
		return
	}
	if h.init == false || other.minval < h.minval {
		h.minval = other.minval
		h.init = true
	}
	if h.maxval < other.maxval {
		h.maxval = other.maxval
	}
	h.n, h.sum = h.n+other.n, h.sum+other.sum
	for i, v := range other.buckets {
		h.buckets[i] += v
	}
}

// Min return minimum value from sample.
func (h *HistogramLog2) Min() int64 {
	return h.minval
}

// Max return maximum value from sample.
func (h *HistogramLog2) Max() int64 {
	return h.maxval
}

// Samples return total number of samples in the set.
func (h *HistogramLog2) Samples() int64 {
	return h.n
}

// Sum return the sum of all sample values.
func (h *HistogramLog2) Sum() int64 {
	return h.sum
}

// Mean return the average value of all samples.
func (h *HistogramLog2) Mean() int64 {
	if h.n == 0 {
		return 0
	}
	return int64(float64(h.sum) / float64(h.n))
}

// Count return number of samples in bucket `i`.
func (h *HistogramLog2) Count(i int) int64 {
	return h.buckets[i]
}

// Clone copies the entire instance.
func (h *HistogramLog2) Clone() *HistogramLog2 {
	newh := *h
	return &newh
}

// Stats return a map of bucket upper-bound to number of samples,
// empty buckets are skipped.
func (h *HistogramLog2) Stats() map[string]int64 {
	m := make(map[string]int64)
	for i, v := range h.buckets {
		if v == 0 {
			continue
		}
		m[bucketkey(i)] = v
	}
	return m
}

// Fullstats includes samples, min, max and mean along with Stats().
func (h *HistogramLog2) Fullstats() map[string]interface{} {
	hmap := make(map[string]interface{})
	for k, v := range h.Stats() {
		hmap[k] = v
	}
	return map[string]interface{}{
		"samples":   h.Samples(),
		"min":       h.Min(),
		"max":       h.Max(),
		"mean":      h.Mean(),
		"histogram": hmap,
	}
}

// Logstring return Fullstats as loggable string.
func (h *HistogramLog2) Logstring() string {
	ss := []string{
		fmt.Sprintf(`"samples": %v`, h.Samples()),
		fmt.Sprintf(`"min": %v`, h.Min()),
		fmt.Sprintf(`"max": %v`, h.Max()),
		fmt.Sprintf(`"mean": %v`, h.Mean()),
	}
	sort.Strings(ss)
	hs := []string{}
	for i, v := range h.buckets {
		if v == 0 {
			continue
		}
		hs = append(hs, fmt.Sprintf(`"%v": %v`, bucketkey(i), v))
	}
	s := "{" + strings.Join(hs, ",") + "}"
	ss = append(ss, fmt.Sprintf(`"histogram": %v`, s))
	return "{" + strings.Join(ss, ",") + "}"
}

func bucketof(sample int64) int {
	if sample <= 1 {
		return 0
	}
	return bits.Len64(uint64(sample - 1))
}

func bucketkey(i int) string {
	if i == 64 {
		return "+"
	}
	return strconv.FormatUint(uint64(1)<<uint(i), 10)
}
