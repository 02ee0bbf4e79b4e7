// Package swc supplies the opaque collaborator surface of spec §6.2: the
// concrete Go shape that `read_swc`/`read_layer_swc` are expected to
// produce, and the construction helpers that turn it into a tree.Tree.
// Parsing SWC text is explicitly out of scope (spec §1); this package
// never opens a file or reads a byte. It exists only so tree/ has
// something typed to build from.
package swc

import (
	"fmt"
	"sort"

	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/nserr"
	"github.com/neurolib/neurostore/tree"
)

// NodeRecord is one already-parsed SWC line: a node id, its SWC type
// code, spatial position, radius, and parent node id (SWC's own -1
// sentinel for "no parent"). Ids are whatever numbering the external
// parser assigned; they need not be contiguous or zero-based, so a
// NodeRecord carries its own Id rather than relying on slice position.
type NodeRecord struct {
	Id     int64
	Type   idtypes.SwcType
	X, Y, Z idtypes.Coord
	Radius idtypes.RealVal
	Parent int64
}

// SectionRecord groups a contiguous run of NodeRecords into one section
// and names the section(s) it connects to, mirroring how morphology
// formats describe branches as edges between section endpoints.
type SectionRecord struct {
	Nodes []NodeRecord
	// Src and Dst are section ordinals within the caller's own
	// numbering; BuildTree renumbers them into tree.Tree's contiguous
	// Sections indexing.
	Src, Dst int
}

// SwcNoParent is the SWC format's own sentinel, distinct from
// idtypes.NoParent: SWC files use -1 in the parent column, and a
// collaborator producing NodeRecords is expected to pass that value
// through unchanged rather than translate it itself.
const SwcNoParent int64 = -1

// BuildTree flattens a single cell's SectionRecords into a tree.Tree
// (spec §3.2), renumbering SWC node ids into the dense 0..N-1 index
// space tree.Tree requires and resolving each node's SWC-numbered
// parent into the corresponding ParentNodeIdx. Nodes are emitted in
// section order, each section's nodes in the order given.
//
// cellId identifies the resulting tree; nodeOffset is added to every
// input node id before parent resolution, giving callers the
// `node_offset` parameter of read_swc/read_layer_swc a concrete home:
// it lets a caller assign a cell's nodes a globally unique id space
// before trees from many cells are merged, without BuildTree needing
// to know anything about other cells.
func BuildTree(cellId idtypes.CellId, sections []SectionRecord, nodeOffset int64) (tree.Tree, error) {
	n := 0
	for _, s := range sections {
		n += len(s.Nodes)
	}

	t := tree.Tree{
		CellId:     cellId,
		Sections:   make([]idtypes.SectionIdx, 0, n),
		X:          make([]idtypes.Coord, 0, n),
		Y:          make([]idtypes.Coord, 0, n),
		Z:          make([]idtypes.Coord, 0, n),
		Radius:     make([]idtypes.RealVal, 0, n),
		Layer:      make([]idtypes.LayerIdx, 0, n),
		Parent:     make([]idtypes.ParentNodeIdx, 0, n),
		SwcType:    make([]idtypes.SwcType, 0, n),
		SrcSection: make([]idtypes.SectionIdx, 0, len(sections)),
		DstSection: make([]idtypes.SectionIdx, 0, len(sections)),
	}

	// Map every offset node id to its dense position so parent
	// references can be resolved regardless of the caller's own
	// numbering gaps or ordering.
	pos := make(map[int64]int, n)
	idx := 0
	for _, s := range sections {
		for _, rec := range s.Nodes {
			pos[rec.Id+nodeOffset] = idx
			idx++
		}
	}

	for secIdx, s := range sections {
		for _, rec := range s.Nodes {
			t.Sections = append(t.Sections, idtypes.SectionIdx(secIdx))
			t.X = append(t.X, rec.X)
			t.Y = append(t.Y, rec.Y)
			t.Z = append(t.Z, rec.Z)
			t.Radius = append(t.Radius, rec.Radius)
			t.Layer = append(t.Layer, 0)
			t.SwcType = append(t.SwcType, rec.Type)

			if rec.Parent == SwcNoParent {
				t.Parent = append(t.Parent, idtypes.NoParent)
				continue
			}
			p, ok := pos[rec.Parent+nodeOffset]
			if !ok {
				return tree.Tree{}, nserr.New(nserr.InvariantViolation, "swc parent resolution",
					fmt.Errorf("cell %d: node %d references unknown parent %d", cellId, rec.Id, rec.Parent))
			}
			t.Parent = append(t.Parent, idtypes.ParentNodeIdx(p))
		}
		t.SrcSection = append(t.SrcSection, idtypes.SectionIdx(s.Src))
		t.DstSection = append(t.DstSection, idtypes.SectionIdx(s.Dst))
	}

	if err := t.Validate(); err != nil {
		return tree.Tree{}, err
	}
	return t, nil
}

// LayerAssignment tells SplitByLayer which SWC type and layer index to
// stamp onto the nodes of one section. SplitByLayer pairs assignments with
// sections by slice position; SectionIdx is not consulted, and an
// assignment covers only its own section, not the sections below it.
type LayerAssignment struct {
	SectionIdx int
	Layer      idtypes.LayerIdx
	SwcType    idtypes.SwcType
}

// SplitByLayer is the `split_layers` half of read_layer_swc: given one
// cell's sections and a per-section layer/type assignment, it produces
// one tree.Tree per distinct layer, each containing only the sections
// assigned to it (and renumbering Src/Dst section references within
// that subset). cellIds supplies one CellId per distinct layer, in
// ascending layer order; layerOffset is added to every resulting
// idtypes.LayerIdx, giving callers the same global-numbering role that
// BuildTree's nodeOffset plays for node ids.
func SplitByLayer(sections []SectionRecord, assignments []LayerAssignment, cellIds map[idtypes.LayerIdx]idtypes.CellId, layerOffset idtypes.LayerIdx, nodeOffset int64) ([]tree.Tree, error) {
	if len(assignments) != len(sections) {
		return nil, nserr.New(nserr.InvariantViolation, "swc layer split",
			fmt.Errorf("%d sections but %d layer assignments", len(sections), len(assignments)))
	}

	byLayer := map[idtypes.LayerIdx][]int{}
	for i, a := range assignments {
		byLayer[a.Layer] = append(byLayer[a.Layer], i)
	}

	layers := make([]idtypes.LayerIdx, 0, len(byLayer))
	for l := range byLayer {
		layers = append(layers, l)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })

	out := make([]tree.Tree, 0, len(layers))
	for _, l := range layers {
		secIdxs := byLayer[l]
		subset := make([]SectionRecord, len(secIdxs))
		swcType := assignments[secIdxs[0]].SwcType

		localOf := make(map[int]int, len(secIdxs))
		for i, si := range secIdxs {
			localOf[si] = i
		}
		for i, si := range secIdxs {
			rec := sections[si]
			if localSrc, ok := localOf[rec.Src]; ok {
				rec.Src = localSrc
			}
			if localDst, ok := localOf[rec.Dst]; ok {
				rec.Dst = localDst
			}
			subset[i] = rec
		}

		cellId, ok := cellIds[l]
		if !ok {
			return nil, nserr.New(nserr.InvariantViolation, "swc layer split",
				fmt.Errorf("no cell id supplied for layer %d", l))
		}

		t, err := BuildTree(cellId, subset, nodeOffset)
		if err != nil {
			return nil, err
		}
		for i := range t.Layer {
			t.Layer[i] = l + layerOffset
			t.SwcType[i] = swcType
		}
		out = append(out, t)
	}
	return out, nil
}
