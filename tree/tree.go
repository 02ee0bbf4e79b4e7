// Package tree implements the Tree data model (spec §3.2) and the Tree
// Encoder/Decoder (spec §4.D): flattening a per-process list of
// tree-structured morphology records into the pointer/payload column
// layout under /Populations/<pop>/Trees/, and the mirror read path.
package tree

import (
	"context"
	"fmt"

	"github.com/neurolib/neurostore/cellindex"
	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/layout"
	"github.com/neurolib/neurostore/nserr"
)

// Tree is one neuron morphology (spec §3.2). All seven per-node columns
// (X, Y, Z, Radius, Layer, Parent, SwcType) must share length N; SrcSection
// and DstSection must share length M; every Sections[i] must name a
// section appearing in the topology.
type Tree struct {
	CellId      idtypes.CellId
	SrcSection  []idtypes.SectionIdx
	DstSection  []idtypes.SectionIdx
	Sections    []idtypes.SectionIdx
	X, Y, Z     []idtypes.Coord
	Radius      []idtypes.RealVal
	Layer       []idtypes.LayerIdx
	Parent      []idtypes.ParentNodeIdx
	SwcType     []idtypes.SwcType
}

// NumNodes returns N, the per-node column length.
func (t Tree) NumNodes() int { return len(t.Sections) }

// NumTopo returns M, the topology edge count.
func (t Tree) NumTopo() int { return len(t.SrcSection) }

// Validate checks the §3.2 invariants for one tree in isolation (column
// length agreement and the parent-pointer rootedness rule). It does not
// check that Sections values refer to a section appearing in the topology
// since "appearing" is only meaningful in the context of the caller's own
// section-numbering convention; callers with a stronger notion of section
// identity should check that themselves.
func (t Tree) Validate() error {
	n := t.NumNodes()
	for _, l := range [][2]interface{}{
		{"x", len(t.X)}, {"y", len(t.Y)}, {"z", len(t.Z)},
		{"radius", len(t.Radius)}, {"layer", len(t.Layer)},
		{"parent", len(t.Parent)}, {"swc_type", len(t.SwcType)},
	} {
		if l[1].(int) != n {
			return nserr.New(nserr.InvariantViolation, "tree column length",
				fmt.Errorf("cell %d: column %s has length %d, expected N=%d", t.CellId, l[0], l[1], n))
		}
	}
	if len(t.DstSection) != len(t.SrcSection) {
		return nserr.New(nserr.InvariantViolation, "tree topology length",
			fmt.Errorf("cell %d: src_section length %d != dst_section length %d", t.CellId, len(t.SrcSection), len(t.DstSection)))
	}
	for i, p := range t.Parent {
		if p != idtypes.NoParent && int(p) >= i {
			return nserr.New(nserr.InvariantViolation, "tree parent pointer",
				fmt.Errorf("cell %d: node %d has parent %d, must be <%d or -1", t.CellId, i, p, i))
		}
	}
	return nil
}

// ColumnStarts names the current global tail of every output column
// family (spec §4.D's ptr_start/attr_start/sec_start/topo_start), read
// from the container's dataset extents before an append.
type ColumnStarts struct {
	PtrStart  uint64
	AttrStart uint64
	SecStart  uint64
	TopoStart uint64
}

// ColumnBuffers holds one rank's locally flattened, rebased column data,
// ready for the fixed-order collective append of step 7.
type ColumnBuffers struct {
	CellIndex []idtypes.CellId

	AttrPtr []idtypes.AttrPtr
	SecPtr  []idtypes.SecPtr
	TopoPtr []idtypes.TopoPtr

	SrcSection []idtypes.SectionIdx
	DstSection []idtypes.SectionIdx
	Section    []idtypes.SectionIdx

	X, Y, Z []idtypes.Coord
	Radius  []idtypes.RealVal
	Layer   []idtypes.LayerIdx
	Parent  []idtypes.ParentNodeIdx
	SwcType []idtypes.SwcType

	// Ranges, one per column family, as planned by the Layout Planner —
	// carried alongside the data so AppendTrees never has to re-derive them.
	PtrRange  layout.Range
	AttrRange layout.Range
	SecRange  layout.Range
	TopoRange layout.Range
}

// EncodeTrees runs the seven-step flattening algorithm of spec §4.D,
// steps 1-5 (push running totals, concatenate payloads, plan layout,
// rebase). It does not write the Cell Index or perform the collective
// append (steps 6-7); those are AppendTrees's job, so that encoding can be
// tested in isolation from the container.
func EncodeTrees(ctx context.Context, comm collective.Communicator, trees []Tree, starts ColumnStarts, isLastRank bool) (ColumnBuffers, error) {
	for _, t := range trees {
		if err := t.Validate(); err != nil {
			return ColumnBuffers{}, err
		}
	}

	var out ColumnBuffers
	out.CellIndex = make([]idtypes.CellId, 0, len(trees))

	attrPtr := []idtypes.AttrPtr{0}
	secPtr := []idtypes.SecPtr{0}
	topoPtr := []idtypes.TopoPtr{0}

	for _, t := range trees {
		out.CellIndex = append(out.CellIndex, t.CellId)

		out.X = append(out.X, t.X...)
		out.Y = append(out.Y, t.Y...)
		out.Z = append(out.Z, t.Z...)
		out.Radius = append(out.Radius, t.Radius...)
		out.Layer = append(out.Layer, t.Layer...)
		out.Parent = append(out.Parent, t.Parent...)
		out.SwcType = append(out.SwcType, t.SwcType...)
		out.Section = append(out.Section, t.Sections...)
		out.SrcSection = append(out.SrcSection, t.SrcSection...)
		out.DstSection = append(out.DstSection, t.DstSection...)

		attrPtr = append(attrPtr, attrPtr[len(attrPtr)-1]+idtypes.AttrPtr(t.NumNodes()))
		secPtr = append(secPtr, secPtr[len(secPtr)-1]+idtypes.SecPtr(t.NumNodes()))
		topoPtr = append(topoPtr, topoPtr[len(topoPtr)-1]+idtypes.TopoPtr(t.NumTopo()))
	}

	nPtr := uint64(len(trees))
	ptrRange, err := layout.PlanPointerFamily(ctx, comm, nPtr, starts.PtrStart, isLastRank)
	if err != nil {
		return ColumnBuffers{}, err
	}
	attrRange, err := layout.Plan(ctx, comm, uint64(len(out.X)), starts.AttrStart)
	if err != nil {
		return ColumnBuffers{}, err
	}
	secRange, err := layout.Plan(ctx, comm, uint64(len(out.Section)), starts.SecStart)
	if err != nil {
		return ColumnBuffers{}, err
	}
	topoRange, err := layout.Plan(ctx, comm, uint64(len(out.SrcSection)), starts.TopoStart)
	if err != nil {
		return ColumnBuffers{}, err
	}
	out.PtrRange, out.AttrRange, out.SecRange, out.TopoRange = ptrRange, attrRange, secRange, topoRange

	// Rebase: pointer arrays gain the family's local_start so they are
	// directly usable against the final concatenated dataset (step 5).
	// attr_ptr/sec_ptr/topo_ptr each drop their synthetic leading 0 unless
	// this is the file's very first append (ptrRange.LocalStart == 0),
	// since that entry duplicates the existing tail sentinel already on
	// disk from the prior append.
	out.AttrPtr = rebasePtr(attrPtr, idtypes.AttrPtr(attrRange.LocalStart), ptrRange.LocalStart == 0)
	out.SecPtr = rebaseSecPtr(secPtr, idtypes.SecPtr(secRange.LocalStart), ptrRange.LocalStart == 0)
	out.TopoPtr = rebaseTopoPtr(topoPtr, idtypes.TopoPtr(topoRange.LocalStart), ptrRange.LocalStart == 0)

	return out, nil
}

func rebasePtr(p []idtypes.AttrPtr, base idtypes.AttrPtr, keepLeading bool) []idtypes.AttrPtr {
	start := 1
	if keepLeading {
		start = 0
	}
	out := make([]idtypes.AttrPtr, 0, len(p)-start)
	for _, v := range p[start:] {
		out = append(out, v+base)
	}
	return out
}

func rebaseSecPtr(p []idtypes.SecPtr, base idtypes.SecPtr, keepLeading bool) []idtypes.SecPtr {
	start := 1
	if keepLeading {
		start = 0
	}
	out := make([]idtypes.SecPtr, 0, len(p)-start)
	for _, v := range p[start:] {
		out = append(out, v+base)
	}
	return out
}

func rebaseTopoPtr(p []idtypes.TopoPtr, base idtypes.TopoPtr, keepLeading bool) []idtypes.TopoPtr {
	start := 1
	if keepLeading {
		start = 0
	}
	out := make([]idtypes.TopoPtr, 0, len(p)-start)
	for _, v := range p[start:] {
		out = append(out, v+base)
	}
	return out
}

func treePath(popName, col string) string {
	return "/Populations/" + popName + "/Trees/" + col
}

// ColumnPath exposes treePath's naming convention for external
// collaborators (e.g. neurostore-dump) that need to introspect a
// population's tree columns via containerfs.DatasetExtent without
// duplicating the path layout themselves.
func ColumnPath(popName, col string) string {
	return treePath(popName, col)
}

// swcTypeEnumSpec builds the enumerated SwcType datatype (spec §6.1) from
// idtypes.SwcTypeNames, in ascending code order.
func swcTypeEnumSpec() *containerfs.EnumSpec {
	spec := &containerfs.EnumSpec{}
	for code := idtypes.SwcUndefined; int(code) < len(idtypes.SwcTypeNames); code++ {
		spec.Names = append(spec.Names, idtypes.SwcTypeNames[code])
		spec.Values = append(spec.Values, int64(code))
	}
	return spec
}

// AppendTrees runs the full Tree Encoder algorithm of spec §4.D: it reads
// every column family's current tail from the container, encodes and
// rebases this rank's trees (EncodeTrees), optionally writes the Cell
// Index (step 6, validating against the existing index when createIndex
// is false — spec §4.C's required, not optional, check), and collectively
// extends and appends every dataset in the fixed canonical order of step
// 7: index, three pointer arrays, topology src/dst sections, section
// column, then the seven per-node attribute columns ending with the
// enumerated SwcType column.
func AppendTrees(ctx context.Context, f *containerfs.File, comm collective.Communicator, popName string, trees []Tree, createIndex bool) error {
	localErr := appendTreesLocal(ctx, f, comm, popName, trees, createIndex)
	return comm.ReduceError(ctx, localErr)
}

func appendTreesLocal(ctx context.Context, f *containerfs.File, comm collective.Communicator, popName string, trees []Tree, createIndex bool) error {
	for _, t := range trees {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	t0, err := f.DatasetExtent(treePath(popName, "x"))
	if err != nil {
		return err
	}
	attrStart := t0
	secStart, err := f.DatasetExtent(treePath(popName, "section"))
	if err != nil {
		return err
	}
	topoStart, err := f.DatasetExtent(treePath(popName, "src_section"))
	if err != nil {
		return err
	}
	treeCount, err := f.DatasetExtent(treePath(popName, "cell_index"))
	if err != nil {
		return err
	}

	isLastRank := layout.IsLastRank(comm.Rank(), comm.Size())
	cb, err := EncodeTrees(ctx, comm, trees, ColumnStarts{
		PtrStart:  treeCount,
		AttrStart: attrStart,
		SecStart:  secStart,
		TopoStart: topoStart,
	}, isLastRank)
	if err != nil {
		return err
	}

	// cb.PtrRange.LocalStart already folds in the base (starts.PtrStart)
	// that PlanPointerFamily was given — it is the absolute tree-count
	// position, not an additional offset from treeCount.
	stripeStart := cb.PtrRange.LocalStart
	// The pointer family's GlobalEnd already counts the one trailing
	// sentinel (PlanPointerFamily inflated exactly one rank's advertised
	// length by 1), so it is already the correct attr_ptr/sec_ptr/topo_ptr
	// dataset length; the Cell Index, a plain payload with no sentinel,
	// is one shorter.
	if createIndex {
		if err := writeIndex(f, popName, stripeStart, cb.PtrRange.GlobalEnd-1, cb.CellIndex); err != nil {
			return err
		}
	} else {
		existing, err := cellindex.ReadIndex(f, popName)
		if err != nil {
			return err
		}
		if err := cellindex.ValidateAgainstStripe(existing, stripeStart, cb.CellIndex); err != nil {
			return err
		}
	}

	keepLeading := cb.PtrRange.LocalStart == 0
	ptrWriteStart := cb.PtrRange.LocalStart + 1
	if keepLeading {
		ptrWriteStart = 0
	}
	ptrDatasetLen := cb.PtrRange.GlobalEnd

	if err := writeCol(f, treePath(popName, "attr_ptr"), containerfs.U64, ptrDatasetLen, ptrWriteStart, uint64(len(cb.AttrPtr)), toU64(cb.AttrPtr)); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "sec_ptr"), containerfs.U64, ptrDatasetLen, ptrWriteStart, uint64(len(cb.SecPtr)), toU64(cb.SecPtr)); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "topo_ptr"), containerfs.U64, ptrDatasetLen, ptrWriteStart, uint64(len(cb.TopoPtr)), toU64(cb.TopoPtr)); err != nil {
		return err
	}

	if err := writeCol(f, treePath(popName, "src_section"), containerfs.U32, cb.TopoRange.GlobalEnd, cb.TopoRange.LocalStart, cb.TopoRange.LocalLen, toU32Slice(cb.SrcSection)); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "dst_section"), containerfs.U32, cb.TopoRange.GlobalEnd, cb.TopoRange.LocalStart, cb.TopoRange.LocalLen, toU32Slice(cb.DstSection)); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "section"), containerfs.U32, cb.SecRange.GlobalEnd, cb.SecRange.LocalStart, cb.SecRange.LocalLen, toU32Slice(cb.Section)); err != nil {
		return err
	}

	if err := writeCol(f, treePath(popName, "x"), containerfs.F32, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, cb.X); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "y"), containerfs.F32, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, cb.Y); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "z"), containerfs.F32, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, cb.Z); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "radius"), containerfs.F32, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, cb.Radius); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "layer"), containerfs.U16, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, toU16Slice(cb.Layer)); err != nil {
		return err
	}
	if err := writeCol(f, treePath(popName, "parent"), containerfs.I32, cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, toI32Slice(cb.Parent)); err != nil {
		return err
	}
	return writeEnumCol(f, treePath(popName, "swc_type"), cb.AttrRange.GlobalEnd, cb.AttrRange.LocalStart, cb.AttrRange.LocalLen, toU8Slice(cb.SwcType))
}

func writeIndex(f *containerfs.File, popName string, stripeStart, globalEnd uint64, ids []idtypes.CellId) error {
	if err := f.CreateOrExtend(treePath(popName, "cell_index"), containerfs.U64, globalEnd, 256, nil); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	return containerfs.WriteSlab(f, treePath(popName, "cell_index"), containerfs.U64, globalEnd, stripeStart, uint64(len(ids)), raw)
}

func writeCol[T containerfs.Numeric](f *containerfs.File, path string, dtype containerfs.ElemType, globalLen, localStart, localLen uint64, data []T) error {
	chunk := uint64(1024)
	if err := f.CreateOrExtend(path, dtype, globalLen, chunk, nil); err != nil {
		return err
	}
	if localLen == 0 {
		return nil
	}
	return containerfs.WriteSlab(f, path, dtype, globalLen, localStart, localLen, data)
}

func writeEnumCol(f *containerfs.File, path string, globalLen, localStart, localLen uint64, data []uint8) error {
	if err := f.CreateOrExtend(path, containerfs.EnumU8, globalLen, 1024, swcTypeEnumSpec()); err != nil {
		return err
	}
	if localLen == 0 {
		return nil
	}
	return containerfs.WriteSlab(f, path, containerfs.EnumU8, globalLen, localStart, localLen, data)
}

// toU64 converts any of the three pointer-family element types (all defined
// as uint64 underneath) to the plain uint64 slice the container writes.
func toU64[T ~uint64](p []T) []uint64 {
	out := make([]uint64, len(p))
	for i, v := range p {
		out[i] = uint64(v)
	}
	return out
}

func toU32Slice(p []idtypes.SectionIdx) []uint32 {
	out := make([]uint32, len(p))
	for i, v := range p {
		out[i] = uint32(v)
	}
	return out
}

func toU16Slice(p []idtypes.LayerIdx) []uint16 {
	out := make([]uint16, len(p))
	for i, v := range p {
		out[i] = uint16(v)
	}
	return out
}

func toI32Slice(p []idtypes.ParentNodeIdx) []int32 {
	out := make([]int32, len(p))
	for i, v := range p {
		out[i] = int32(v)
	}
	return out
}

func toU8Slice(p []idtypes.SwcType) []uint8 {
	out := make([]uint8, len(p))
	for i, v := range p {
		out[i] = uint8(v)
	}
	return out
}

// ReadTrees reads back the trees in tree-index window rng (rng.LocalStart,
// rng.LocalLen; rng.GlobalEnd is unused by reads) in canonical per-tree
// position order, the mirror of AppendTrees.
func ReadTrees(f *containerfs.File, popName string, rng layout.Range) ([]Tree, error) {
	start, count := rng.LocalStart, rng.LocalLen
	if count == 0 {
		return nil, nil
	}

	attrPtr, err := containerfs.ReadSlab[uint64](f, treePath(popName, "attr_ptr"), start, count+1)
	if err != nil {
		return nil, err
	}
	secPtr, err := containerfs.ReadSlab[uint64](f, treePath(popName, "sec_ptr"), start, count+1)
	if err != nil {
		return nil, err
	}
	topoPtr, err := containerfs.ReadSlab[uint64](f, treePath(popName, "topo_ptr"), start, count+1)
	if err != nil {
		return nil, err
	}
	cellIds, err := containerfs.ReadSlab[uint64](f, treePath(popName, "cell_index"), start, count)
	if err != nil {
		return nil, err
	}

	attrBase, attrSpan := attrPtr[0], attrPtr[count]-attrPtr[0]
	secBase, secSpan := secPtr[0], secPtr[count]-secPtr[0]
	topoBase, topoSpan := topoPtr[0], topoPtr[count]-topoPtr[0]

	x, err := containerfs.ReadSlab[float32](f, treePath(popName, "x"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	y, err := containerfs.ReadSlab[float32](f, treePath(popName, "y"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	z, err := containerfs.ReadSlab[float32](f, treePath(popName, "z"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	radius, err := containerfs.ReadSlab[float32](f, treePath(popName, "radius"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	layer, err := containerfs.ReadSlab[uint16](f, treePath(popName, "layer"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	parent, err := containerfs.ReadSlab[int32](f, treePath(popName, "parent"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	swcType, err := containerfs.ReadSlab[uint8](f, treePath(popName, "swc_type"), attrBase, attrSpan)
	if err != nil {
		return nil, err
	}
	section, err := containerfs.ReadSlab[uint32](f, treePath(popName, "section"), secBase, secSpan)
	if err != nil {
		return nil, err
	}
	srcSection, err := containerfs.ReadSlab[uint32](f, treePath(popName, "src_section"), topoBase, topoSpan)
	if err != nil {
		return nil, err
	}
	dstSection, err := containerfs.ReadSlab[uint32](f, treePath(popName, "dst_section"), topoBase, topoSpan)
	if err != nil {
		return nil, err
	}

	out := make([]Tree, count)
	for k := range out {
		aLo, aHi := attrPtr[k]-attrBase, attrPtr[k+1]-attrBase
		sLo, sHi := secPtr[k]-secBase, secPtr[k+1]-secBase
		tLo, tHi := topoPtr[k]-topoBase, topoPtr[k+1]-topoBase

		out[k] = Tree{
			CellId:     idtypes.CellId(cellIds[k]),
			X:          castCoord(x[aLo:aHi]),
			Y:          castCoord(y[aLo:aHi]),
			Z:          castCoord(z[aLo:aHi]),
			Radius:     castReal(radius[aLo:aHi]),
			Layer:      castLayer(layer[aLo:aHi]),
			Parent:     castParent(parent[aLo:aHi]),
			SwcType:    castSwc(swcType[aLo:aHi]),
			Sections:   castSection(section[sLo:sHi]),
			SrcSection: castSection(srcSection[tLo:tHi]),
			DstSection: castSection(dstSection[tLo:tHi]),
		}
	}
	return out, nil
}

func castCoord(v []float32) []idtypes.Coord {
	out := make([]idtypes.Coord, len(v))
	copy(out, v)
	return out
}

func castReal(v []float32) []idtypes.RealVal {
	out := make([]idtypes.RealVal, len(v))
	copy(out, v)
	return out
}

func castLayer(v []uint16) []idtypes.LayerIdx {
	out := make([]idtypes.LayerIdx, len(v))
	for i, e := range v {
		out[i] = idtypes.LayerIdx(e)
	}
	return out
}

func castParent(v []int32) []idtypes.ParentNodeIdx {
	out := make([]idtypes.ParentNodeIdx, len(v))
	for i, e := range v {
		out[i] = idtypes.ParentNodeIdx(e)
	}
	return out
}

func castSwc(v []uint8) []idtypes.SwcType {
	out := make([]idtypes.SwcType, len(v))
	for i, e := range v {
		out[i] = idtypes.SwcType(e)
	}
	return out
}

func castSection(v []uint32) []idtypes.SectionIdx {
	out := make([]idtypes.SectionIdx, len(v))
	for i, e := range v {
		out[i] = idtypes.SectionIdx(e)
	}
	return out
}
