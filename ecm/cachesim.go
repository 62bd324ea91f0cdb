// Package ecm implements the data-transfer part of the
// Execution-Cache-Memory performance model: it predicts, per cache level,
// the cycles spent moving one cache-line's worth of loop iterations through
// the memory hierarchy.
package ecm

import (
	"fmt"
	"sort"

	"github.com/sarchlab/ecmsim/intervals"
	"github.com/sarchlab/ecmsim/kernel"
	"github.com/sarchlab/ecmsim/machine"
)

// ModelName labels results produced by the cache-access simulator.
const ModelName = "ECMData"

// layerConditionDivisor reserves a fraction of each cache level for the
// level's own working set; the remainder is assumed to serve the next
// level. Half-and-half is the standard ECM assumption.
const layerConditionDivisor = 2

// An InternalError reports a defect: a state the kernel extractor should
// have made unreachable. It is distinct from the user-facing structural
// errors of the kernel package.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal invariant violated: " + e.Msg
}

// LevelStats are the per-level tallies behind a prediction. Element counts
// plus the corresponding cache-line counts after line blocking.
type LevelStats struct {
	Level       int
	TraceLength int
	Hits        int
	Misses      int
	Evicts      int
	LineHits    int
	LineMisses  int
	LineEvicts  int
}

// An accessKey identifies one stream of accesses: a variable together with
// the order of loop indices its subscripts use (e.g. "ji" for a[j][i]).
type accessKey struct {
	variable   string
	indexOrder string
}

// A CacheSimulator predicts cache traffic for one processed kernel on one
// machine. Each Calculate call rebuilds all per-level state, so a simulator
// can be reused and always yields identical results for identical inputs.
type CacheSimulator struct {
	model   *kernel.Model
	machine *machine.Model

	stats []LevelStats
}

// NewCacheSimulator creates a CacheSimulator for the kernel model on the
// given machine.
func NewCacheSimulator(
	km *kernel.Model,
	mm *machine.Model,
) *CacheSimulator {
	return &CacheSimulator{model: km, machine: mm}
}

// Name returns the performance-model label used in stored results.
func (s *CacheSimulator) Name() string {
	return ModelName
}

// Stats returns the per-level tallies of the most recent Calculate call.
func (s *CacheSimulator) Stats() []LevelStats {
	return s.stats
}

// Calculate runs the layer-condition simulation over every cache level and
// returns the predicted cycle cost per transition, keyed "L1-L2", ...,
// "L{n}-MEM", rounded to one decimal place.
func (s *CacheSimulator) Calculate() (Result, error) {
	elemType, err := s.elementType()
	if err != nil {
		return nil, err
	}

	elemSize := elemType.Size()
	if s.machine.CachelineBytes%elemSize != 0 {
		return nil, fmt.Errorf(
			"cache line of %d bytes does not hold whole %s elements",
			s.machine.CachelineBytes, elemType)
	}
	epc := s.machine.CachelineBytes / elemSize

	streams, err := s.collectStreams(epc)
	if err != nil {
		return nil, err
	}

	results := Result{}
	s.stats = nil

	// Each level's miss candidates are the previous level's unresolved
	// misses, so levels run strictly bottom-up.
	var prevMisses map[accessKey][]int

	for i, lvl := range s.machine.CacheStack {
		misses, hits, traceLength := s.simulateLevel(
			lvl, streams, prevMisses, epc, elemSize)

		st := LevelStats{Level: lvl.Level, TraceLength: traceLength}
		for _, key := range streams.keys {
			st.Misses += len(misses[key])
			st.Hits += len(hits[key])
			st.Evicts += len(streams.writes[key])
			st.LineMisses += len(blocking(misses[key], epc))
			st.LineHits += len(blocking(hits[key], epc))
			st.LineEvicts += len(blocking(streams.writes[key], epc))
		}
		s.stats = append(s.stats, st)

		lines := float64(st.LineMisses + st.LineEvicts)
		if i < len(s.machine.CacheStack)-1 {
			label := fmt.Sprintf("L%d-L%d", lvl.Level, lvl.Level+1)
			results[label] = round1(lines * lvl.Cycles)
		} else {
			label := fmt.Sprintf("L%d-MEM", lvl.Level)
			bytesPerLine := float64(epc * elemSize)
			results[label] = round1(
				lines * bytesPerLine / s.machine.MemBandwidth * s.machine.ClockHz)
		}

		prevMisses = misses
	}

	return results, nil
}

// accessStreams is the flattened access pattern: per stream, the distinct
// element offsets read and written over one cache-line's worth of innermost
// iterations, sorted descending (most recently touched first), plus the
// element stride one innermost-loop step moves the stream by.
type accessStreams struct {
	keys    []accessKey
	reads   map[accessKey][]int
	writes  map[accessKey][]int
	iterOff map[accessKey]int
}

// collectStreams flattens the recorded accesses of every non-scalar
// variable into relative element offsets and unrolls them over
// elementsPerCacheline iterations. Accesses that do not move with the
// innermost loop are assumed register-resident and skipped.
func (s *CacheSimulator) collectStreams(epc int) (*accessStreams, error) {
	streams := &accessStreams{
		reads:   make(map[accessKey][]int),
		writes:  make(map[accessKey][]int),
		iterOff: make(map[accessKey]int),
	}

	inner := s.model.InnermostIndex()

	for _, name := range sortedNames(s.model.Variables) {
		v := s.model.Variables[name]
		if v.IsScalar() {
			continue
		}

		err := s.collectVariable(streams, name, inner, epc,
			s.model.Sources[name], streams.reads)
		if err != nil {
			return nil, err
		}

		err = s.collectVariable(streams, name, inner, epc,
			s.model.Destinations[name], streams.writes)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(streams.keys, func(a, b int) bool {
		ka, kb := streams.keys[a], streams.keys[b]
		if ka.variable != kb.variable {
			return ka.variable < kb.variable
		}
		return ka.indexOrder < kb.indexOrder
	})

	return streams, nil
}

func (s *CacheSimulator) collectVariable(
	streams *accessStreams,
	name, inner string,
	epc int,
	accesses []kernel.Access,
	into map[accessKey][]int,
) error {
	for _, access := range accesses {
		if !access.UsesIndex(inner) {
			continue
		}

		offset, order, iterOff, err := s.flatten(name, access, inner)
		if err != nil {
			return err
		}

		key := accessKey{variable: name, indexOrder: order}

		if _, seen := streams.iterOff[key]; !seen {
			streams.keys = append(streams.keys, key)
			streams.iterOff[key] = iterOff
		}

		into[key] = append(into[key], offset)
		for i := 1; i < epc; i++ {
			into[key] = append(into[key], offset+i*iterOff)
		}
		into[key] = dedupDescending(into[key])
	}

	return nil
}

// flatten turns an access into its element offset relative to the iteration
// center, the concatenated order of loop indices it uses, and the element
// distance one step of the innermost loop moves it by. Only relative
// offsets may reach this point; the extractor rejects everything else.
func (s *CacheSimulator) flatten(
	name string,
	access kernel.Access,
	inner string,
) (offset int, order string, iterOff int, err error) {
	for dim, o := range access {
		if o.Kind != kernel.Relative {
			return 0, "", 0, &InternalError{
				Msg: fmt.Sprintf(
					"non-relative offset %s of %q reached the cache simulation",
					o, name),
			}
		}

		offset += o.Delta * s.model.Stride(name, dim)
		order += o.Index
		if o.Index == inner {
			iterOff += s.model.Stride(name, dim)
		}
	}

	return offset, order, iterOff, nil
}

// simulateLevel finds the layer-condition fixed point for one cache level:
// the longest backward trace of prior iterations that still fits the
// level's reserved share. It returns the unresolved misses, the deduped
// hits, and the converged trace length.
func (s *CacheSimulator) simulateLevel(
	lvl machine.CacheLevel,
	streams *accessStreams,
	prevMisses map[accessKey][]int,
	epc, elemSize int,
) (misses, hits map[accessKey][]int, traceLength int) {
	capElems := lvl.SizeBytes / elemSize
	reservedBytes := lvl.SizeBytes / layerConditionDivisor

	for {
		misses = make(map[accessKey][]int)
		hits = make(map[accessKey][]int)

		traceCount := 0
		usedBytes := 0

		for _, key := range streams.keys {
			candidates := levelCandidates(key, streams, prevMisses)
			iterOff := streams.iterOff[key]
			cache := intervals.NewSet()

			for _, off := range candidates {
				if cache.Contains(off) {
					hits[key] = appendUnique(hits[key], off)
				} else {
					misses[key] = append(misses[key], off)
				}

				// Misses arrive sorted by descending offset, i.e. most
				// recent access first, which is what lets an LRU trace be
				// replayed backward as plain range insertion.
				cache = cache.MergeCapped(
					traceRanges(off, iterOff, traceLength, epc), capElems)
			}

			traceCount += cache.NumRanges()
			usedBytes += cache.Size() * elemSize
		}

		// Layer condition: grow the trace into whatever reserved capacity
		// is still unused, and stop at the fixed point. With no ranges at
		// all there is nothing to grow.
		growth := 0
		if traceCount > 0 {
			growth = floorDiv(floorDiv(reservedBytes-usedBytes, traceCount), elemSize)
		}
		if growth <= 0 {
			return misses, hits, traceLength
		}
		traceLength += growth
	}
}

// levelCandidates returns the miss candidates entering a level: every
// unrolled read and write offset at level 1 (write-allocate), and the
// previous level's unresolved misses above.
func levelCandidates(
	key accessKey,
	streams *accessStreams,
	prevMisses map[accessKey][]int,
) []int {
	if prevMisses != nil {
		return append([]int{}, prevMisses[key]...)
	}

	candidates := append([]int{}, streams.reads[key]...)
	candidates = append(candidates, streams.writes[key]...)
	sort.Sort(sort.Reverse(sort.IntSlice(candidates)))

	return candidates
}

// traceRanges expands one access into the cache-line-aligned content the
// level holds for it after traceLength prior iterations. Strides within a
// cache line collapse into one contiguous span; larger strides leave one
// range per iteration.
func traceRanges(offset, iterOff, traceLength, epc int) []intervals.Range {
	if iterOff <= epc {
		first := alignDown(offset-iterOff*traceLength, epc)
		last := alignDown(offset+1, epc) + epc - 1

		return []intervals.Range{{Start: first, End: last + 1}}
	}

	var ranges []intervals.Range
	for o := offset - iterOff*traceLength; o <= offset; o += iterOff {
		first := alignDown(o, epc)
		ranges = append(ranges, intervals.Range{Start: first, End: first + epc})
	}

	return ranges
}

// blocking groups element offsets into the distinct cache-line blocks that
// contain them, returned in ascending order.
func blocking(offsets []int, blockSize int) []int {
	seen := make(map[int]bool)
	var blocks []int

	for _, off := range offsets {
		b := floorDiv(off, blockSize)
		if !seen[b] {
			seen[b] = true
			blocks = append(blocks, b)
		}
	}
	sort.Ints(blocks)

	return blocks
}

// elementType returns the single datatype shared by all kernel variables.
func (s *CacheSimulator) elementType() (kernel.ElemType, error) {
	var elemType kernel.ElemType

	for _, name := range sortedNames(s.model.Variables) {
		t := s.model.Variables[name].Type
		if elemType == "" {
			elemType = t
			continue
		}
		if t != elemType {
			return "", fmt.Errorf(
				"mixed element types %s and %s in one kernel are not supported",
				elemType, t)
		}
	}

	if elemType == "" {
		return "", fmt.Errorf("kernel declares no variables")
	}

	return elemType, nil
}

func sortedNames(vars map[string]kernel.Variable) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func appendUnique(offsets []int, off int) []int {
	for _, o := range offsets {
		if o == off {
			return offsets
		}
	}

	return append(offsets, off)
}

func dedupDescending(offsets []int) []int {
	seen := make(map[int]bool)
	deduped := offsets[:0]

	for _, off := range offsets {
		if !seen[off] {
			seen[off] = true
			deduped = append(deduped, off)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(deduped)))

	return deduped
}

// floorDiv divides rounding toward negative infinity, which keeps line
// blocking and range alignment correct for negative offsets.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}

	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

func alignDown(x, n int) int {
	return x - floorMod(x, n)
}
