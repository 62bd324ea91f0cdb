package ecm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ecmsim/intervals"
	"github.com/sarchlab/ecmsim/machine"
)

var _ = Describe("floorDiv", func() {
	It("should round toward negative infinity", func() {
		Expect(floorDiv(7, 8)).To(Equal(0))
		Expect(floorDiv(8, 8)).To(Equal(1))
		Expect(floorDiv(-1, 8)).To(Equal(-1))
		Expect(floorDiv(-8, 8)).To(Equal(-1))
		Expect(floorDiv(-9, 8)).To(Equal(-2))
	})
})

var _ = Describe("blocking", func() {
	It("should group offsets into distinct ascending blocks", func() {
		Expect(blocking([]int{7, 6, 5, 0}, 8)).To(Equal([]int{0}))
		Expect(blocking([]int{15, 8, 7, -1}, 8)).To(Equal([]int{-1, 0, 1}))
	})

	It("should be stable under repeated application", func() {
		once := blocking([]int{15, 8, 7, -1}, 8)
		Expect(blocking(once, 1)).To(Equal(once))
	})
})

var _ = Describe("simulateLevel", func() {
	It("should grow the trace to the layer-condition fixed point", func() {
		key := accessKey{variable: "a", indexOrder: "i"}
		streams := &accessStreams{
			keys:    []accessKey{key},
			reads:   map[accessKey][]int{key: {7, 6, 5, 4, 3, 2, 1, 0}},
			writes:  map[accessKey][]int{},
			iterOff: map[accessKey]int{key: 1},
		}
		lvl := machine.CacheLevel{Level: 1, SizeBytes: 1024, Cycles: 2}

		sim := &CacheSimulator{}
		misses, hits, traceLength := sim.simulateLevel(lvl, streams, nil, 8, 8)

		// One contiguous 8-element range: the reserved 512 bytes hold the
		// first line plus 48 prior iterations, reached in one growth step.
		Expect(traceLength).To(Equal(48))
		Expect(traceLength).To(BeNumerically("<=", lvl.SizeBytes/8))
		Expect(misses[key]).To(Equal([]int{7}))
		Expect(hits[key]).To(HaveLen(7))
	})

	It("should settle at zero with nothing to trace", func() {
		streams := &accessStreams{
			reads:   map[accessKey][]int{},
			writes:  map[accessKey][]int{},
			iterOff: map[accessKey]int{},
		}
		lvl := machine.CacheLevel{Level: 1, SizeBytes: 1024, Cycles: 2}

		sim := &CacheSimulator{}
		misses, hits, traceLength := sim.simulateLevel(lvl, streams, nil, 8, 8)

		Expect(traceLength).To(Equal(0))
		Expect(misses).To(BeEmpty())
		Expect(hits).To(BeEmpty())
	})
})

var _ = Describe("traceRanges", func() {
	It("should collapse unit strides into one aligned span", func() {
		ranges := traceRanges(7, 1, 10, 8)

		Expect(ranges).To(HaveLen(1))
		Expect(ranges[0]).To(Equal(intervals.Range{Start: -8, End: 16}))
	})

	It("should keep one line per iteration for large strides", func() {
		ranges := traceRanges(0, 100, 2, 8)

		Expect(ranges).To(Equal([]intervals.Range{
			{Start: -200, End: -192},
			{Start: -104, End: -96},
			{Start: 0, End: 8},
		}))
	})
})
