// Package population models the population table carried by every
// container (spec §3.3): an ordered set of contiguous NodeId ranges each
// tagged with a Pop, the set of admissible (src_pop, dst_pop) projection
// pairs, and a name for every Pop. It also writes and reads the /H5Types/
// layout (spec §6.1) that makes these tables self-describing on disk.
//
// The distilled spec names PopRange and the admissible-pair set but does
// not fully model them (spec.md §3.3); the concrete column layout below is
// taken from original_source's pop-range/pop-pair compound header layout,
// mapped onto containerfs's column primitives rather than a true HDF5
// compound type (the adapted container's datatype registry, grounded on
// dataset_write.go, only builds scalar and enum datatypes — see DESIGN.md).
package population

import (
	"fmt"
	"sort"

	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/nserr"
)

// PopRange is a contiguous, half-open NodeId range [Start, Start+Count)
// tagged with the population it belongs to (spec §3.3).
type PopRange struct {
	Start idtypes.NodeId
	Count uint64
	Pop   idtypes.Pop
}

// End returns the exclusive end of the range.
func (r PopRange) End() idtypes.NodeId {
	return r.Start + idtypes.NodeId(r.Count)
}

// RangeTable answers "which population, and what offset within it, does
// this NodeId belong to" (used by the DBS reconstruction rule's dst_start
// term and by tree/graph admissibility checks). Ranges are kept sorted by
// Start so RankOf can binary-search.
type RangeTable struct {
	ranges []PopRange
}

// NewRangeTable builds a RangeTable from an unordered set of ranges,
// rejecting overlap (spec §3.3 requires populations to partition NodeId
// space; an overlap is a layout defect, not a valid input).
func NewRangeTable(ranges []PopRange) (*RangeTable, error) {
	sorted := append([]PopRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End() {
			return nil, nserr.New(nserr.InvariantViolation, "population range table",
				fmt.Errorf("range %d [%d,%d) overlaps range %d [%d,%d)",
					i, sorted[i].Start, sorted[i].End(), i-1, sorted[i-1].Start, sorted[i-1].End()))
		}
	}
	return &RangeTable{ranges: sorted}, nil
}

// RankOf returns the population id and the offset of id within that
// population's range (the "pop_start" term the DBS reconstruction rule
// subtracts/adds), or ok=false if id falls in no known range.
func (t *RangeTable) RankOf(id idtypes.NodeId) (pop idtypes.Pop, offset uint64, ok bool) {
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].End() > id })
	if i == len(t.ranges) || id < t.ranges[i].Start {
		return 0, 0, false
	}
	r := t.ranges[i]
	return r.Pop, uint64(id - r.Start), true
}

// RangeOf returns the PopRange a given Pop was registered with.
func (t *RangeTable) RangeOf(pop idtypes.Pop) (PopRange, bool) {
	for _, r := range t.ranges {
		if r.Pop == pop {
			return r, true
		}
	}
	return PopRange{}, false
}

// Ranges returns the table's ranges in Start order.
func (t *RangeTable) Ranges() []PopRange {
	return append([]PopRange(nil), t.ranges...)
}

// PopPair is one admissible (source population, destination population)
// projection pair (spec §3.3, §4.E.2, §8 property 5).
type PopPair struct {
	Src idtypes.Pop
	Dst idtypes.Pop
}

// PairSet is the admissible (src_pop, dst_pop) set a container carries.
// A projection whose (src, dst) pair is absent is a layout defect:
// graph.ScatterReadProjection refuses to read it
// (nserr.PopulationPairForbidden). graph.AppendGraph takes no PairSet and
// does not check admissibility.
type PairSet struct {
	allowed map[PopPair]bool
}

// NewPairSet builds a PairSet from an explicit list of admissible pairs.
func NewPairSet(pairs []PopPair) *PairSet {
	m := make(map[PopPair]bool, len(pairs))
	for _, p := range pairs {
		m[p] = true
	}
	return &PairSet{allowed: m}
}

// Allows reports whether a projection from src to dst is admissible.
func (s *PairSet) Allows(src, dst idtypes.Pop) bool {
	return s.allowed[PopPair{Src: src, Dst: dst}]
}

// Pairs returns the set's members in no particular order.
func (s *PairSet) Pairs() []PopPair {
	out := make([]PopPair, 0, len(s.allowed))
	for p := range s.allowed {
		out = append(out, p)
	}
	return out
}

// Names is the ordered Pop-id -> name table (spec §6.1's "enumerated type
// for population labels"). Index i names Pop(i).
type Names []string

// PopOf returns the Pop id of name, or ok=false if unknown.
func (n Names) PopOf(name string) (idtypes.Pop, bool) {
	for i, v := range n {
		if v == name {
			return idtypes.Pop(i), true
		}
	}
	return 0, false
}

const (
	h5TypesGroup   = "/H5Types"
	rangeStartPath = h5TypesGroup + "/pop_range_start"
	rangeCountPath = h5TypesGroup + "/pop_range_count"
	rangePopPath   = h5TypesGroup + "/pop_range_pop"
	pairSrcPath    = h5TypesGroup + "/pop_pair_src"
	pairDstPath    = h5TypesGroup + "/pop_pair_dst"
	namesPath      = h5TypesGroup + "/pop_names_codes"
	namesBytesPath = h5TypesGroup + "/pop_names_bytes"
	namesWidthPath = h5TypesGroup + "/pop_names_width"
)

// WriteH5Types persists the population name table, admissible pair set and
// range table under /H5Types/ (spec §6.1). It is a single-writer operation:
// only rank 0 writes, and any other rank returns nil at once. It performs
// no barrier of its own, so the caller orders it before any append that
// depends on this layout.
//
// The container's adapted datatype registry (grounded on dataset_write.go,
// see DESIGN.md) builds enum and scalar column types but not HDF5 compound
// types, so PopRange{start,count,pop} and the (src,dst) pair are each
// stored as their constituent scalar columns rather than one compound
// dataset — the mapping original_source itself describes, decomposed onto
// containerfs's column model.
func WriteH5Types(f *containerfs.File, rank int, names Names, pairs []PopPair, ranges []PopRange) error {
	if rank != 0 {
		return nil
	}
	if len(names) > 256 {
		return nserr.New(nserr.InvariantViolation, "write /H5Types/pop_names",
			fmt.Errorf("%d population names exceeds the 256-value enum column limit", len(names)))
	}

	sorted := append([]PopRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	n := uint64(len(sorted))
	starts := make([]uint64, n)
	counts := make([]uint64, n)
	pops := make([]uint16, n)
	for i, r := range sorted {
		starts[i] = uint64(r.Start)
		counts[i] = r.Count
		pops[i] = uint16(r.Pop)
	}
	if err := writeColumn(f, rangeStartPath, containerfs.U64, n, starts); err != nil {
		return err
	}
	if err := writeColumn(f, rangeCountPath, containerfs.U64, n, counts); err != nil {
		return err
	}
	if err := writeColumn(f, rangePopPath, containerfs.U16, n, pops); err != nil {
		return err
	}

	m := uint64(len(pairs))
	srcs := make([]uint16, m)
	dsts := make([]uint16, m)
	for i, p := range pairs {
		srcs[i] = uint16(p.Src)
		dsts[i] = uint16(p.Dst)
	}
	if err := writeColumn(f, pairSrcPath, containerfs.U16, m, srcs); err != nil {
		return err
	}
	if err := writeColumn(f, pairDstPath, containerfs.U16, m, dsts); err != nil {
		return err
	}

	// pop_names_codes models spec §6.1's "enumerated type for population
	// labels": one EnumU8 identity column whose attached datatype carries
	// the code->name mapping, for readers with real enum-datatype support.
	enumValues := make([]int64, len(names))
	identity := make([]uint8, len(names))
	for i := range names {
		enumValues[i] = int64(i)
		identity[i] = uint8(i)
	}
	spec := &containerfs.EnumSpec{Names: append([]string(nil), names...), Values: enumValues}
	nn := uint64(len(names))
	if err := f.CreateOrExtend(namesPath, containerfs.EnumU8, nn, nn, spec); err != nil {
		return err
	}
	if nn > 0 {
		if err := containerfs.WriteSlab(f, namesPath, containerfs.EnumU8, nn, 0, nn, identity); err != nil {
			return err
		}
	}

	// pop_names_bytes/pop_names_width redundantly persist the actual name
	// strings as a fixed-width byte column: containerfs has no
	// variable-length string column, so ReadH5Types recovers real names
	// from here rather than from the enum datatype it cannot yet introspect.
	width := uint64(1)
	for _, name := range names {
		if uint64(len(name)) > width {
			width = uint64(len(name))
		}
	}
	packed := make([]uint8, nn*width)
	for i, name := range names {
		copy(packed[uint64(i)*width:], []byte(name))
	}
	if err := writeColumn(f, namesWidthPath, containerfs.U32, 1, []uint32{uint32(width)}); err != nil {
		return err
	}
	return writeColumn(f, namesBytesPath, containerfs.U8, nn*width, packed)
}

// writeColumn creates (or extends, if already present from a prior write)
// a /H5Types/ scalar column and writes its full contents in one slab.
func writeColumn[T containerfs.Numeric](f *containerfs.File, path string, dtype containerfs.ElemType, n uint64, data []T) error {
	chunk := n
	if chunk == 0 {
		chunk = 1
	}
	if err := f.CreateOrExtend(path, dtype, n, chunk, nil); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return containerfs.WriteSlab(f, path, dtype, n, 0, n, data)
}

// ReadH5Types reads back the population range table, pair set and name
// table a prior WriteH5Types call persisted.
func ReadH5Types(f *containerfs.File) (names Names, pairs []PopPair, ranges []PopRange, err error) {
	n, err := f.DatasetExtent(rangeStartPath)
	if err != nil {
		return nil, nil, nil, err
	}
	starts, err := containerfs.ReadSlab[uint64](f, rangeStartPath, 0, n)
	if err != nil {
		return nil, nil, nil, err
	}
	counts, err := containerfs.ReadSlab[uint64](f, rangeCountPath, 0, n)
	if err != nil {
		return nil, nil, nil, err
	}
	pops, err := containerfs.ReadSlab[uint16](f, rangePopPath, 0, n)
	if err != nil {
		return nil, nil, nil, err
	}
	ranges = make([]PopRange, n)
	for i := range ranges {
		ranges[i] = PopRange{Start: idtypes.NodeId(starts[i]), Count: counts[i], Pop: idtypes.Pop(pops[i])}
	}

	m, err := f.DatasetExtent(pairSrcPath)
	if err != nil {
		return nil, nil, nil, err
	}
	srcs, err := containerfs.ReadSlab[uint16](f, pairSrcPath, 0, m)
	if err != nil {
		return nil, nil, nil, err
	}
	dsts, err := containerfs.ReadSlab[uint16](f, pairDstPath, 0, m)
	if err != nil {
		return nil, nil, nil, err
	}
	pairs = make([]PopPair, m)
	for i := range pairs {
		pairs[i] = PopPair{Src: idtypes.Pop(srcs[i]), Dst: idtypes.Pop(dsts[i])}
	}

	nn, err := f.DatasetExtent(namesPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if nn == 0 {
		return Names{}, pairs, ranges, nil
	}
	widthCol, err := containerfs.ReadSlab[uint32](f, namesWidthPath, 0, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	width := uint64(widthCol[0])
	packed, err := containerfs.ReadSlab[uint8](f, namesBytesPath, 0, nn*width)
	if err != nil {
		return nil, nil, nil, err
	}
	names = make(Names, nn)
	for i := range names {
		raw := packed[uint64(i)*width : uint64(i+1)*width]
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		names[i] = string(raw[:end])
	}
	return names, pairs, ranges, nil
}
