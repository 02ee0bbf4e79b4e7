// Package idtypes defines the distinct scalar roles used throughout the
// tree and graph codecs. Each role is a named type over a fixed-width
// integer or float so that, for example, a SectionIdx can never be passed
// where a NodeId is expected without an explicit conversion.
package idtypes

// CellId identifies a tree (morphology) globally across a population.
type CellId uint64

// NodeId identifies a node within a population's contiguous range.
type NodeId uint64

// SectionIdx is the ordinal of a section within one tree.
type SectionIdx uint32

// LayerIdx identifies a cortical/anatomical layer.
type LayerIdx uint16

// ParentNodeIdx is a signed per-node parent reference; -1 means "no parent".
type ParentNodeIdx int32

// NoParent is the sentinel ParentNodeIdx value meaning the node is a root.
const NoParent ParentNodeIdx = -1

// Pop identifies a population (a contiguous, tagged range of NodeIds).
type Pop uint16

// PopRank is the destination compute rank a node is assigned to during a
// scatter-read.
type PopRank uint32

// AttrPtr indexes into the concatenated per-node attribute columns.
type AttrPtr uint64

// SecPtr indexes into the concatenated per-node section column.
type SecPtr uint64

// TopoPtr indexes into the concatenated topology src/dst section arrays.
type TopoPtr uint64

// DstPtr is a cumulative per-destination-node edge offset into src_idx.
type DstPtr uint64

// DstBlkPtr is a cumulative per-block destination offset into dst_ptr.
type DstBlkPtr uint64

// SwcType is a closed enumeration of SWC node types (soma, axon, dendrite, ...).
type SwcType uint8

// Standard SWC node type codes, per the SWC morphology format convention.
const (
	SwcUndefined SwcType = 0
	SwcSoma      SwcType = 1
	SwcAxon      SwcType = 2
	SwcBasalDend SwcType = 3
	SwcApicalDend SwcType = 4
	SwcCustom    SwcType = 5
)

// SwcTypeNames is the canonical name table used to build the enumerated
// container type for the swc_type column (§6.1 /H5Types/).
var SwcTypeNames = map[SwcType]string{
	SwcUndefined:  "undefined",
	SwcSoma:       "soma",
	SwcAxon:       "axon",
	SwcBasalDend:  "basal_dendrite",
	SwcApicalDend: "apical_dendrite",
	SwcCustom:     "custom",
}

// Coord is a finite floating point spatial coordinate.
type Coord = float32

// RealVal is a finite floating point scalar value (e.g. section radius).
type RealVal = float32
