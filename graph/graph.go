// Package graph implements the Destination Block Sparse projection model
// (spec §3.4) and the Graph (DBS) Codec (spec §4.E): AppendGraph encodes a
// caller-supplied edge map into the three-tier dst_blk_ptr/dst_idx/dst_ptr/
// src_idx layout under /Projections/<src>→<dst>/, and ScatterReadProjection
// performs the stripe-assign/bulk-read/redistribute scatter read that
// repartitions edges by a caller-supplied node→rank map.
package graph

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/layout"
	"github.com/neurolib/neurostore/nserr"
	"github.com/neurolib/neurostore/population"
)

// AttrColumnSpec declares one edge-attribute column: its name and the exact
// on-disk element width. Per spec §9's "heterogeneous attribute widths"
// note, width is never erased — each spec maps to exactly one native Go
// slice type in AttrColumn.
type AttrColumnSpec struct {
	Name string
	Type containerfs.ElemType
}

// AttrScalar is a tagged single edge-attribute value, carrying exactly the
// field matching its Type.
type AttrScalar struct {
	Type containerfs.ElemType
	U8   uint8
	U16  uint16
	U32  uint32
	U64  uint64
	I32  int32
	F32  float32
}

// EdgeEntry is one edge out of a destination node: its source node and the
// attribute values declared by the projection's AttrColumnSpecs.
type EdgeEntry struct {
	Src   idtypes.NodeId
	Attrs map[string]AttrScalar
}

// EdgeMap is the caller-supplied input to AppendGraph: destination node to
// its incoming edges (spec §4.E.1's "destination-node → (source-nodes,
// edge-attrs)").
type EdgeMap map[idtypes.NodeId][]EdgeEntry

// ProjectionInfo names the projection being encoded or read: its source and
// destination population identities (names, for the on-disk path; Pop
// codes and NodeId range starts, for rebasing and admissibility).
type ProjectionInfo struct {
	SrcName  string
	DstName  string
	SrcPop   idtypes.Pop
	DstPop   idtypes.Pop
	SrcStart idtypes.NodeId
	DstStart idtypes.NodeId
}

func projGroup(p ProjectionInfo) string {
	return "/Projections/" + p.SrcName + "→" + p.DstName
}

func projPath(p ProjectionInfo, col string) string {
	return projGroup(p) + "/" + col
}

// ColumnPath exposes projPath's naming convention for external
// collaborators (e.g. neurostore-dump) that need to introspect a
// projection's DBS columns via containerfs.DatasetExtent without
// duplicating the path layout themselves.
func ColumnPath(p ProjectionInfo, col string) string {
	return projPath(p, col)
}

func attrPath(p ProjectionInfo, spec AttrColumnSpec) string {
	return projGroup(p) + "/attrs/" + widthDir(spec.Type) + "/" + spec.Name
}

func widthDir(t containerfs.ElemType) string {
	switch t {
	case containerfs.U8:
		return "u8"
	case containerfs.U16:
		return "u16"
	case containerfs.U32:
		return "u32"
	case containerfs.U64:
		return "u64"
	case containerfs.I32:
		return "i32"
	case containerfs.F32:
		return "f32"
	default:
		return "unknown"
	}
}

// DBSStarts names the current global tail of each DBS column family (spec
// §4.E.1), read from the container's dataset extents before an append:
// BlkStart is the tail of dst_blk_ptr/dst_idx's block-index space, DstStart
// the tail of dst_ptr's destination-node-index space, EdgeStart the tail of
// src_idx's (and every attribute column's) edge-index space.
type DBSStarts struct {
	BlkStart  uint64
	DstStart  uint64
	EdgeStart uint64
}

// AttrColumn holds one rank's locally concatenated attribute values, in
// exactly the native slice matching its declared width.
type AttrColumn struct {
	Type containerfs.ElemType
	U8   []uint8
	U16  []uint16
	U32  []uint32
	U64  []uint64
	I32  []int32
	F32  []float32
}

func (c *AttrColumn) push(v AttrScalar) error {
	if v.Type != c.Type {
		return nserr.New(nserr.InvariantViolation, "edge attribute width",
			fmt.Errorf("expected type %v, got %v", c.Type, v.Type))
	}
	switch c.Type {
	case containerfs.U8:
		c.U8 = append(c.U8, v.U8)
	case containerfs.U16:
		c.U16 = append(c.U16, v.U16)
	case containerfs.U32:
		c.U32 = append(c.U32, v.U32)
	case containerfs.U64:
		c.U64 = append(c.U64, v.U64)
	case containerfs.I32:
		c.I32 = append(c.I32, v.I32)
	case containerfs.F32:
		c.F32 = append(c.F32, v.F32)
	default:
		return nserr.New(nserr.InvariantViolation, "edge attribute width", fmt.Errorf("unsupported type %v", c.Type))
	}
	return nil
}

func (c AttrColumn) len() int {
	switch c.Type {
	case containerfs.U8:
		return len(c.U8)
	case containerfs.U16:
		return len(c.U16)
	case containerfs.U32:
		return len(c.U32)
	case containerfs.U64:
		return len(c.U64)
	case containerfs.I32:
		return len(c.I32)
	case containerfs.F32:
		return len(c.F32)
	default:
		return 0
	}
}

// GraphBuffers holds one rank's locally flattened, rebased DBS columns,
// ready for the fixed-order collective append.
type GraphBuffers struct {
	DstBlkPtr []idtypes.DstBlkPtr
	DstIdx    []idtypes.NodeId
	DstPtr    []idtypes.DstPtr
	SrcIdx    []idtypes.NodeId
	Attrs     map[string]AttrColumn

	BlkRange  layout.Range
	DstRange  layout.Range
	EdgeRange layout.Range
}

// EncodeGraph runs the block-formation and rebase steps of spec §4.E.1 in
// isolation, so they can be tested apart from the container:
//
//  1. Destination nodes are grouped into maximal runs of consecutive
//     NodeIds; each run is one block.
//  2. Within a block, each destination's edges are visited in ascending
//     destination order, each destination's own edges concatenated in
//     ascending source order.
//  3. Running totals are pushed onto dst_blk_ptr (per-block destination-node
//     count) and dst_ptr (per-destination-node edge count); dst_idx and
//     src_idx carry population-range-relative values that need no
//     rank-position rebase.
//  4. The Layout Planner is invoked once per pointer family (dst_blk_ptr,
//     dst_ptr) and once for the edge payload family (src_idx and every
//     attribute column share it).
//  5. dst_blk_ptr and dst_ptr are rebased by the local start of the index
//     space they point into, exactly as the Tree Encoder rebases attr_ptr.
func EncodeGraph(ctx context.Context, comm collective.Communicator, edges EdgeMap, attrSpecs []AttrColumnSpec, proj ProjectionInfo, starts DBSStarts, isLastRank bool) (GraphBuffers, error) {
	dsts := make([]idtypes.NodeId, 0, len(edges))
	for d := range edges {
		dsts = append(dsts, d)
	}
	sort.Slice(dsts, func(i, j int) bool { return dsts[i] < dsts[j] })

	var blocks [][]idtypes.NodeId
	for _, d := range dsts {
		if len(blocks) > 0 {
			last := blocks[len(blocks)-1]
			if last[len(last)-1]+1 == d {
				blocks[len(blocks)-1] = append(last, d)
				continue
			}
		}
		blocks = append(blocks, []idtypes.NodeId{d})
	}

	attrCols := make(map[string]AttrColumn, len(attrSpecs))
	for _, spec := range attrSpecs {
		attrCols[spec.Name] = AttrColumn{Type: spec.Type}
	}

	dstBlkPtr := []idtypes.DstBlkPtr{0}
	dstPtr := []idtypes.DstPtr{0}
	dstIdx := make([]idtypes.NodeId, 0, len(blocks))
	srcIdx := make([]idtypes.NodeId, 0, len(edges))

	for _, block := range blocks {
		dstIdx = append(dstIdx, block[0]-proj.DstStart)
		dstBlkPtr = append(dstBlkPtr, dstBlkPtr[len(dstBlkPtr)-1]+idtypes.DstBlkPtr(len(block)))

		for _, d := range block {
			entries := append([]EdgeEntry(nil), edges[d]...)
			sort.Slice(entries, func(i, j int) bool { return entries[i].Src < entries[j].Src })

			dstPtr = append(dstPtr, dstPtr[len(dstPtr)-1]+idtypes.DstPtr(len(entries)))
			for _, e := range entries {
				srcIdx = append(srcIdx, e.Src-proj.SrcStart)
				for name, col := range attrCols {
					v, ok := e.Attrs[name]
					if !ok {
						return GraphBuffers{}, nserr.New(nserr.InvariantViolation, "edge attribute",
							fmt.Errorf("edge dst=%d src=%d missing attribute %q", d, e.Src, name))
					}
					if err := col.push(v); err != nil {
						return GraphBuffers{}, err
					}
					attrCols[name] = col
				}
			}
		}
	}

	nBlk := uint64(len(dstIdx))
	nDst := uint64(len(dstPtr) - 1)
	nEdge := uint64(len(srcIdx))

	blkRange, err := layout.PlanPointerFamily(ctx, comm, nBlk, starts.BlkStart, isLastRank)
	if err != nil {
		return GraphBuffers{}, err
	}
	dstRange, err := layout.PlanPointerFamily(ctx, comm, nDst, starts.DstStart, isLastRank)
	if err != nil {
		return GraphBuffers{}, err
	}
	edgeRange, err := layout.Plan(ctx, comm, nEdge, starts.EdgeStart)
	if err != nil {
		return GraphBuffers{}, err
	}

	out := GraphBuffers{
		DstIdx:    dstIdx,
		SrcIdx:    srcIdx,
		Attrs:     attrCols,
		BlkRange:  blkRange,
		DstRange:  dstRange,
		EdgeRange: edgeRange,
	}
	out.DstBlkPtr = rebaseDstBlkPtr(dstBlkPtr, idtypes.DstBlkPtr(dstRange.LocalStart), blkRange.LocalStart == 0)
	out.DstPtr = rebaseDstPtr(dstPtr, idtypes.DstPtr(edgeRange.LocalStart), dstRange.LocalStart == 0)
	return out, nil
}

func rebaseDstBlkPtr(p []idtypes.DstBlkPtr, base idtypes.DstBlkPtr, keepLeading bool) []idtypes.DstBlkPtr {
	start := 1
	if keepLeading {
		start = 0
	}
	out := make([]idtypes.DstBlkPtr, 0, len(p)-start)
	for _, v := range p[start:] {
		out = append(out, v+base)
	}
	return out
}

func rebaseDstPtr(p []idtypes.DstPtr, base idtypes.DstPtr, keepLeading bool) []idtypes.DstPtr {
	start := 1
	if keepLeading {
		start = 0
	}
	out := make([]idtypes.DstPtr, 0, len(p)-start)
	for _, v := range p[start:] {
		out = append(out, v+base)
	}
	return out
}

// AppendGraph runs the full Graph Codec append of spec §4.E.1: it reads
// every column family's current tail from the container, encodes and
// rebases this rank's edges (EncodeGraph), and collectively extends and
// appends every dataset in a fixed canonical order: dst_blk_ptr, dst_idx,
// dst_ptr, src_idx, then every attribute column in the order attrSpecs
// names them.
func AppendGraph(ctx context.Context, f *containerfs.File, comm collective.Communicator, proj ProjectionInfo, edges EdgeMap, attrSpecs []AttrColumnSpec, chunkSize uint64) error {
	localErr := appendGraphLocal(ctx, f, comm, proj, edges, attrSpecs, chunkSize)
	return comm.ReduceError(ctx, localErr)
}

func appendGraphLocal(ctx context.Context, f *containerfs.File, comm collective.Communicator, proj ProjectionInfo, edges EdgeMap, attrSpecs []AttrColumnSpec, chunkSize uint64) error {
	blkStart, err := f.DatasetExtent(projPath(proj, "dst_idx"))
	if err != nil {
		return err
	}
	dstStart, err := dstPtrTail(f, proj)
	if err != nil {
		return err
	}
	edgeStart, err := f.DatasetExtent(projPath(proj, "src_idx"))
	if err != nil {
		return err
	}

	isLastRank := layout.IsLastRank(comm.Rank(), comm.Size())
	gb, err := EncodeGraph(ctx, comm, edges, attrSpecs, proj, DBSStarts{
		BlkStart:  blkStart,
		DstStart:  dstStart,
		EdgeStart: edgeStart,
	}, isLastRank)
	if err != nil {
		return err
	}

	if chunkSize == 0 {
		chunkSize = 1024
	}

	blkKeepLeading := gb.BlkRange.LocalStart == 0
	blkWriteStart := gb.BlkRange.LocalStart + 1
	if blkKeepLeading {
		blkWriteStart = 0
	}
	blkDatasetLen := gb.BlkRange.GlobalEnd
	if err := writeCol(f, projPath(proj, "dst_blk_ptr"), containerfs.U64, blkDatasetLen, blkWriteStart, uint64(len(gb.DstBlkPtr)), toU64(gb.DstBlkPtr), chunkSize); err != nil {
		return err
	}
	if err := writeCol(f, projPath(proj, "dst_idx"), containerfs.U64, gb.BlkRange.GlobalEnd-1, gb.BlkRange.LocalStart, gb.BlkRange.LocalLen, toU64(gb.DstIdx), chunkSize); err != nil {
		return err
	}

	dstKeepLeading := gb.DstRange.LocalStart == 0
	dstWriteStart := gb.DstRange.LocalStart + 1
	if dstKeepLeading {
		dstWriteStart = 0
	}
	dstDatasetLen := gb.DstRange.GlobalEnd
	if err := writeCol(f, projPath(proj, "dst_ptr"), containerfs.U64, dstDatasetLen, dstWriteStart, uint64(len(gb.DstPtr)), toU64(gb.DstPtr), chunkSize); err != nil {
		return err
	}

	if err := writeCol(f, projPath(proj, "src_idx"), containerfs.U64, gb.EdgeRange.GlobalEnd, gb.EdgeRange.LocalStart, gb.EdgeRange.LocalLen, toU64(gb.SrcIdx), chunkSize); err != nil {
		return err
	}

	for _, spec := range attrSpecs {
		col := gb.Attrs[spec.Name]
		path := attrPath(proj, spec)
		if err := writeAttrCol(f, path, spec.Type, gb.EdgeRange.GlobalEnd, gb.EdgeRange.LocalStart, gb.EdgeRange.LocalLen, col, chunkSize); err != nil {
			return err
		}
	}
	return nil
}

// dstPtrTail derives dst_ptr's current tail from the extent of the
// family's own dataset, minus its trailing sentinel, since dst_ptr
// (unlike dst_blk_ptr, whose tail is read from its payload sibling
// dst_idx) has no separate plain-payload sibling to read instead.
func dstPtrTail(f *containerfs.File, proj ProjectionInfo) (uint64, error) {
	n, err := f.DatasetExtent(projPath(proj, "dst_ptr"))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil // dataset carries one trailing sentinel beyond the true count
}

func writeCol[T containerfs.Numeric](f *containerfs.File, path string, dtype containerfs.ElemType, globalLen, localStart, localLen uint64, data []T, chunk uint64) error {
	if err := f.CreateOrExtend(path, dtype, globalLen, chunk, nil); err != nil {
		return err
	}
	if localLen == 0 {
		return nil
	}
	return containerfs.WriteSlab(f, path, dtype, globalLen, localStart, localLen, data)
}

func writeAttrCol(f *containerfs.File, path string, dtype containerfs.ElemType, globalLen, localStart, localLen uint64, col AttrColumn, chunk uint64) error {
	switch dtype {
	case containerfs.U8:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.U8, chunk)
	case containerfs.U16:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.U16, chunk)
	case containerfs.U32:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.U32, chunk)
	case containerfs.U64:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.U64, chunk)
	case containerfs.I32:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.I32, chunk)
	case containerfs.F32:
		return writeCol(f, path, dtype, globalLen, localStart, localLen, col.F32, chunk)
	default:
		return nserr.New(nserr.InvariantViolation, path, fmt.Errorf("unsupported attribute width %v", dtype))
	}
}

func toU64[T ~uint64](p []T) []uint64 {
	out := make([]uint64, len(p))
	for i, v := range p {
		out[i] = uint64(v)
	}
	return out
}

// EdgeMapType selects the keying convention ScatterReadProjection delivers
// its result in (spec §4.E.2).
type EdgeMapType int

const (
	// DestinationKeyed keys the delivered edge map by destination node —
	// canonical for downstream compute.
	DestinationKeyed EdgeMapType = iota
	// SourceKeyed keys the delivered edge map by source node, for callers
	// that invert the traversal.
	SourceKeyed
)

// Window is the (offset, numitems) slice of the destination stripe, in
// block-index space, a scatter-read is restricted to.
type Window struct {
	Offset   uint64
	NumItems uint64
}

// DestEdges is one destination node's delivered edges under
// DestinationKeyed.
type DestEdges struct {
	Src   []idtypes.NodeId
	Attrs map[string][]AttrScalar
}

// SourceEdges is one source node's delivered edges under SourceKeyed.
type SourceEdges struct {
	Dst   []idtypes.NodeId
	Attrs map[string][]AttrScalar
}

// ScatterResult is what ScatterReadProjection delivers to one rank: the
// redistributed edge map (in the policy ScatterReadProjection was called
// with) plus the three counters spec §4.E.2 names.
type ScatterResult struct {
	EdgeMapType   EdgeMapType
	ByDst         map[idtypes.NodeId]*DestEdges
	BySrc         map[idtypes.NodeId]*SourceEdges
	AttrNames     []string
	LocalNumNodes uint64
	LocalNumEdges uint64
	TotalNumEdges uint64
}

// wireEdge is one fully reconstructed (dst, src, attrs) triple, used
// internally between the bulk-read and redistribution phases.
type wireEdge struct {
	Dst   idtypes.NodeId
	Src   idtypes.NodeId
	Attrs map[string]AttrScalar
}

// ScatterReadProjection implements the 3-phase stripe-assign/bulk-read/
// redistribute algorithm of spec §4.E.2 and its
// Idle→StripePlanned→Reading→Redistributing→Delivered|Failed state machine
// (§4.E.3): every call is one synchronous pass through all four states,
// with no state retained between calls.
func ScatterReadProjection(ctx context.Context, f *containerfs.File, comm collective.Communicator, proj ProjectionInfo, admissible *population.PairSet, nodeRankMap func(idtypes.NodeId) idtypes.PopRank, edgeMapType EdgeMapType, attrSpecs []AttrColumnSpec, window Window) (ScatterResult, error) {
	result, localErr := scatterReadLocal(ctx, f, comm, proj, admissible, nodeRankMap, edgeMapType, attrSpecs, window)
	if err := comm.ReduceError(ctx, localErr); err != nil {
		return ScatterResult{}, err
	}
	return result, nil
}

func scatterReadLocal(ctx context.Context, f *containerfs.File, comm collective.Communicator, proj ProjectionInfo, admissible *population.PairSet, nodeRankMap func(idtypes.NodeId) idtypes.PopRank, edgeMapType EdgeMapType, attrSpecs []AttrColumnSpec, window Window) (ScatterResult, error) {
	// State: Idle -> StripePlanned. Admissibility is a property of the
	// whole projection (source and destination population are fixed for
	// every edge it holds), so it is checked once, not per edge.
	if admissible != nil && !admissible.Allows(proj.SrcPop, proj.DstPop) {
		return ScatterResult{}, nserr.New(nserr.PopulationPairForbidden, "scatter_read_projection",
			fmt.Errorf("pair (%d,%d) not admissible", proj.SrcPop, proj.DstPop))
	}

	size := comm.Size()
	rank := comm.Rank()
	lo := window.Offset + (window.NumItems*uint64(rank))/uint64(size)
	hi := window.Offset + (window.NumItems*uint64(rank+1))/uint64(size)

	// State: StripePlanned -> Reading.
	edges, err := bulkReadBlockRange(f, proj, attrSpecs, lo, hi)
	if err != nil {
		return ScatterResult{}, err
	}

	// State: Reading -> Redistributing.
	out, err := redistribute(ctx, comm, edges, attrSpecs, nodeRankMap, edgeMapType, lo, hi, window)
	if err != nil {
		return ScatterResult{}, err
	}
	// State: Redistributing -> Delivered (implicit: returning here without
	// error is the terminal Delivered state).
	return out, nil
}

// bulkReadBlockRange reads the block-index window [lo, hi) of dst_blk_ptr
// and dst_idx, the destination-node-index range those blocks cover from
// dst_ptr, and the edge-index range those destinations cover from src_idx
// and every requested attribute column (spec §4.E.2 step 2).
func bulkReadBlockRange(f *containerfs.File, proj ProjectionInfo, attrSpecs []AttrColumnSpec, lo, hi uint64) ([]wireEdge, error) {
	if hi <= lo {
		return nil, nil
	}
	blkPtr, err := containerfs.ReadSlab[uint64](f, projPath(proj, "dst_blk_ptr"), lo, hi-lo+1)
	if err != nil {
		return nil, err
	}
	dstIdx, err := containerfs.ReadSlab[uint64](f, projPath(proj, "dst_idx"), lo, hi-lo)
	if err != nil {
		return nil, err
	}

	dstLo, dstHi := blkPtr[0], blkPtr[len(blkPtr)-1]
	var dstPtr []uint64
	if dstHi > dstLo {
		dstPtr, err = containerfs.ReadSlab[uint64](f, projPath(proj, "dst_ptr"), dstLo, dstHi-dstLo+1)
		if err != nil {
			return nil, err
		}
	} else {
		dstPtr = []uint64{0}
	}

	edgeLo, edgeHi := uint64(0), uint64(0)
	if len(dstPtr) > 0 {
		edgeLo, edgeHi = dstPtr[0], dstPtr[len(dstPtr)-1]
	}
	var srcIdx []uint64
	if edgeHi > edgeLo {
		srcIdx, err = containerfs.ReadSlab[uint64](f, projPath(proj, "src_idx"), edgeLo, edgeHi-edgeLo)
		if err != nil {
			return nil, err
		}
	}

	attrCols := make(map[string]AttrColumn, len(attrSpecs))
	for _, spec := range attrSpecs {
		col, err := readAttrCol(f, attrPath(proj, spec), spec.Type, edgeLo, edgeHi-edgeLo)
		if err != nil {
			return nil, err
		}
		attrCols[spec.Name] = col
	}

	var out []wireEdge
	for b := range dstIdx {
		blkStart, blkEnd := blkPtr[b], blkPtr[b+1]
		for i := blkStart; i < blkEnd; i++ {
			dst := idtypes.NodeId(dstIdx[b]) + idtypes.NodeId(i-blkStart) + proj.DstStart
			edgeStart, edgeEnd := dstPtr[i-dstLo], dstPtr[i-dstLo+1]
			for j := edgeStart; j < edgeEnd; j++ {
				src := idtypes.NodeId(srcIdx[j-edgeLo]) + proj.SrcStart
				attrs := make(map[string]AttrScalar, len(attrSpecs))
				for _, spec := range attrSpecs {
					attrs[spec.Name] = attrCols[spec.Name].at(int(j - edgeLo))
				}
				out = append(out, wireEdge{Dst: dst, Src: src, Attrs: attrs})
			}
		}
	}
	return out, nil
}

func (c AttrColumn) at(i int) AttrScalar {
	switch c.Type {
	case containerfs.U8:
		return AttrScalar{Type: c.Type, U8: c.U8[i]}
	case containerfs.U16:
		return AttrScalar{Type: c.Type, U16: c.U16[i]}
	case containerfs.U32:
		return AttrScalar{Type: c.Type, U32: c.U32[i]}
	case containerfs.U64:
		return AttrScalar{Type: c.Type, U64: c.U64[i]}
	case containerfs.I32:
		return AttrScalar{Type: c.Type, I32: c.I32[i]}
	case containerfs.F32:
		return AttrScalar{Type: c.Type, F32: c.F32[i]}
	default:
		return AttrScalar{Type: c.Type}
	}
}

func readAttrCol(f *containerfs.File, path string, dtype containerfs.ElemType, start, count uint64) (AttrColumn, error) {
	if count == 0 {
		return AttrColumn{Type: dtype}, nil
	}
	switch dtype {
	case containerfs.U8:
		v, err := containerfs.ReadSlab[uint8](f, path, start, count)
		return AttrColumn{Type: dtype, U8: v}, err
	case containerfs.U16:
		v, err := containerfs.ReadSlab[uint16](f, path, start, count)
		return AttrColumn{Type: dtype, U16: v}, err
	case containerfs.U32:
		v, err := containerfs.ReadSlab[uint32](f, path, start, count)
		return AttrColumn{Type: dtype, U32: v}, err
	case containerfs.U64:
		v, err := containerfs.ReadSlab[uint64](f, path, start, count)
		return AttrColumn{Type: dtype, U64: v}, err
	case containerfs.I32:
		v, err := containerfs.ReadSlab[int32](f, path, start, count)
		return AttrColumn{Type: dtype, I32: v}, err
	case containerfs.F32:
		v, err := containerfs.ReadSlab[float32](f, path, start, count)
		return AttrColumn{Type: dtype, F32: v}, err
	default:
		return AttrColumn{}, nserr.New(nserr.InvariantViolation, path, fmt.Errorf("unsupported attribute width %v", dtype))
	}
}

// redistribute groups this rank's locally reconstructed edges by owning
// rank (nodeRankMap applied to each edge's destination) and exchanges them
// via one AllToAllV, preserving the attribute correspondence (spec §4.E.2
// step 3). The wire format is a flat little-endian record stream: one
// destination NodeId, one source NodeId, then each attrSpecs column's value
// in declared order, each in a fixed 8-byte slot whatever its width.
func redistribute(ctx context.Context, comm collective.Communicator, edges []wireEdge, attrSpecs []AttrColumnSpec, nodeRankMap func(idtypes.NodeId) idtypes.PopRank, edgeMapType EdgeMapType, lo, hi uint64, window Window) (ScatterResult, error) {
	size := comm.Size()
	send := make([][]byte, size)
	for _, e := range edges {
		r := int(nodeRankMap(e.Dst))
		if r < 0 || r >= size {
			return ScatterResult{}, nserr.New(nserr.InvariantViolation, "scatter_read_projection",
				fmt.Errorf("node_rank_map returned out-of-range rank %d for dst %d", r, e.Dst))
		}
		send[r] = append(send[r], encodeEdge(e, attrSpecs)...)
	}

	recv, err := comm.AllToAllV(ctx, send)
	if err != nil {
		return ScatterResult{}, nserr.New(nserr.CommunicatorFailure, "scatter_read_projection: all_to_all_v", err)
	}

	out := ScatterResult{EdgeMapType: edgeMapType}
	for _, spec := range attrSpecs {
		out.AttrNames = append(out.AttrNames, spec.Name)
	}

	var localEdges uint64
	switch edgeMapType {
	case DestinationKeyed:
		out.ByDst = map[idtypes.NodeId]*DestEdges{}
	default:
		out.BySrc = map[idtypes.NodeId]*SourceEdges{}
	}

	for _, buf := range recv {
		decoded, err := decodeEdges(buf, attrSpecs)
		if err != nil {
			return ScatterResult{}, err
		}
		for _, e := range decoded {
			localEdges++
			switch edgeMapType {
			case DestinationKeyed:
				rec, ok := out.ByDst[e.Dst]
				if !ok {
					rec = &DestEdges{Attrs: make(map[string][]AttrScalar, len(attrSpecs))}
					out.ByDst[e.Dst] = rec
				}
				rec.Src = append(rec.Src, e.Src)
				for _, spec := range attrSpecs {
					rec.Attrs[spec.Name] = append(rec.Attrs[spec.Name], e.Attrs[spec.Name])
				}
			default:
				rec, ok := out.BySrc[e.Src]
				if !ok {
					rec = &SourceEdges{Attrs: make(map[string][]AttrScalar, len(attrSpecs))}
					out.BySrc[e.Src] = rec
				}
				rec.Dst = append(rec.Dst, e.Dst)
				for _, spec := range attrSpecs {
					rec.Attrs[spec.Name] = append(rec.Attrs[spec.Name], e.Attrs[spec.Name])
				}
			}
		}
	}

	out.LocalNumEdges = localEdges
	if edgeMapType == DestinationKeyed {
		out.LocalNumNodes = uint64(len(out.ByDst))
	} else {
		out.LocalNumNodes = uint64(len(out.BySrc))
	}

	totals, err := comm.AllGatherU64(ctx, localEdges)
	if err != nil {
		return ScatterResult{}, nserr.New(nserr.CommunicatorFailure, "scatter_read_projection: total count", err)
	}
	for _, n := range totals {
		out.TotalNumEdges += n
	}
	return out, nil
}

const attrScalarWireWidth = 8

func encodeEdge(e wireEdge, attrSpecs []AttrColumnSpec) []byte {
	buf := make([]byte, 16+len(attrSpecs)*attrScalarWireWidth)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Dst))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Src))
	off := 16
	for _, spec := range attrSpecs {
		v := e.Attrs[spec.Name]
		switch spec.Type {
		case containerfs.U8:
			buf[off] = v.U8
		case containerfs.U16:
			binary.LittleEndian.PutUint16(buf[off:], v.U16)
		case containerfs.U32:
			binary.LittleEndian.PutUint32(buf[off:], v.U32)
		case containerfs.U64:
			binary.LittleEndian.PutUint64(buf[off:], v.U64)
		case containerfs.I32:
			binary.LittleEndian.PutUint32(buf[off:], uint32(v.I32))
		case containerfs.F32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v.F32))
		}
		off += attrScalarWireWidth
	}
	return buf
}

func decodeEdges(buf []byte, attrSpecs []AttrColumnSpec) ([]wireEdge, error) {
	recSize := 16 + len(attrSpecs)*attrScalarWireWidth
	if recSize == 0 || len(buf)%recSize != 0 {
		return nil, nserr.New(nserr.CommunicatorFailure, "scatter_read_projection: decode", fmt.Errorf("malformed edge buffer of length %d", len(buf)))
	}
	n := len(buf) / recSize
	out := make([]wireEdge, n)
	for i := 0; i < n; i++ {
		rec := buf[i*recSize:]
		e := wireEdge{
			Dst:   idtypes.NodeId(binary.LittleEndian.Uint64(rec[0:8])),
			Src:   idtypes.NodeId(binary.LittleEndian.Uint64(rec[8:16])),
			Attrs: make(map[string]AttrScalar, len(attrSpecs)),
		}
		off := 16
		for _, spec := range attrSpecs {
			var v AttrScalar
			v.Type = spec.Type
			switch spec.Type {
			case containerfs.U8:
				v.U8 = rec[off]
			case containerfs.U16:
				v.U16 = binary.LittleEndian.Uint16(rec[off:])
			case containerfs.U32:
				v.U32 = binary.LittleEndian.Uint32(rec[off:])
			case containerfs.U64:
				v.U64 = binary.LittleEndian.Uint64(rec[off:])
			case containerfs.I32:
				v.I32 = int32(binary.LittleEndian.Uint32(rec[off:]))
			case containerfs.F32:
				v.F32 = math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))
			}
			e.Attrs[spec.Name] = v
			off += attrScalarWireWidth
		}
		out[i] = e
	}
	return out, nil
}
