// Package containerfs is the Container Adapter (spec §4.A): a minimal,
// typed wrapper over a chunked hierarchical binary store exposing only
// open/close, dataset extent/extend, 1-D hyperslab read/write, and
// enumerated-type construction. It is backed by the pure-Go HDF5 engine
// in internal/h5, generalized here from a generic "write any HDF5 file"
// library into the fixed, append-only column-array access pattern the
// tree and graph codecs need.
//
// The underlying DatasetWriter supports only whole-buffer Write calls
// (no partial hyperslab writes), and a FileWriter's navigable *File
// snapshot is the structure loaded at open time — it does not grow to
// reflect datasets created later in the same write session. To bridge
// both gaps, File keeps one in-memory, append-only buffer per dataset
// it has touched (seeded from disk on first touch for a reopened file,
// empty for a brand-new one) and always persists by resizing and
// rewriting that whole buffer.
package containerfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	h5 "github.com/neurolib/neurostore/internal/h5"
	"github.com/neurolib/neurostore/nserr"
)

// ElemType names one of the fixed-width column element types the core
// data model uses (spec §3.1); it is the "enumerated user type" the
// container needs to materialize a dataset.
type ElemType int

// Supported column element types. EnumU8 additionally carries a
// name→value mapping (set via EnumSpec) used to build the SwcType
// enumerated container type (§6.1 /H5Types/).
const (
	U8 ElemType = iota
	U16
	U32
	U64
	I32
	F32
	EnumU8
)

// Numeric is the set of Go types usable as column element types in
// WriteSlab/ReadSlab — every fixed-width scalar role from idtypes is a
// defined type over one of these underlying kinds.
type Numeric interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int32 | ~float32
}

// EnumSpec names the enumerated type to build for an EnumU8 column.
type EnumSpec struct {
	Names  []string
	Values []int64
}

// datasetState is the in-memory mirror of one dataset's full current
// content, kept so WriteSlab can extend-and-rewrite without depending on
// partial-write or same-session-lookup support from the underlying
// writer.
// buf holds the native wire-width slice for dtype: []uint8 for U8/EnumU8,
// []uint16 for U16, []uint32 for U32 and (bit-reinterpreted) I32, []uint64
// for U64, []float32 for F32.
type datasetState struct {
	dtype ElemType
	buf   interface{}
	dw    *h5.DatasetWriter
}

// File is an open container (HDF5-backed) file handle, opened either for
// collective writing (rw=true) or read-only access.
type File struct {
	mu sync.Mutex

	path string
	rw   bool

	writer *h5.FileWriter
	reader *h5.File

	createdGroups map[string]bool
	states        map[string]*datasetState

	ioSem *semaphore.Weighted
}

// Option configures a File at Open time.
type Option func(*File)

// WithMaxConcurrentIO bounds the number of concurrent DatasetExtent,
// CreateOrExtend, WriteSlab, and ReadSlab calls this handle will admit at
// once, blocking excess callers rather than letting every simulated rank's
// I/O land on the single f.mu critical section at the same moment. n <= 0
// means unbounded (the default).
func WithMaxConcurrentIO(n int) Option {
	return func(f *File) {
		if n > 0 {
			f.ioSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// acquireIO blocks until the concurrent-I/O budget admits this call; a nil
// ioSem (the default, or n<=0) means no limit.
func (f *File) acquireIO() {
	if f.ioSem != nil {
		f.ioSem.Acquire(context.Background(), 1)
	}
}

func (f *File) releaseIO() {
	if f.ioSem != nil {
		f.ioSem.Release(1)
	}
}

// Open opens path for reading (rw=false) or for collective writing
// (rw=true). In write mode a new file is created if none exists;
// otherwise the existing file is opened for read-modify-write so that
// successive Append* calls (spec §3.5, §8 property 6) extend it.
func Open(path string, rw bool, opts ...Option) (*File, error) {
	if !rw {
		f, err := h5.Open(path)
		if err != nil {
			return nil, nserr.New(nserr.ContainerIo, "open for read: "+path, err)
		}
		ret := &File{path: path, reader: f, states: map[string]*datasetState{}}
		for _, opt := range opts {
			opt(ret)
		}
		return ret, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fw, err := h5.CreateForWrite(path, h5.CreateTruncate)
		if err != nil {
			return nil, nserr.New(nserr.ContainerIo, "create for write: "+path, err)
		}
		ret := &File{path: path, rw: true, writer: fw, createdGroups: map[string]bool{}, states: map[string]*datasetState{}}
		for _, opt := range opts {
			opt(ret)
		}
		return ret, nil
	} else if err != nil {
		return nil, nserr.New(nserr.ContainerIo, "stat: "+path, err)
	}

	fw, err := h5.OpenForWrite(path, h5.OpenReadWrite)
	if err != nil {
		return nil, nserr.New(nserr.ContainerIo, "open for write: "+path, err)
	}
	ret := &File{path: path, rw: true, writer: fw, createdGroups: map[string]bool{}, states: map[string]*datasetState{}}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// Close releases the underlying file handle on every exit path.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer != nil {
		err := f.writer.Close()
		f.writer = nil
		if err != nil {
			return nserr.New(nserr.ContainerIo, "close: "+f.path, err)
		}
		return nil
	}
	if f.reader != nil {
		err := f.reader.Close()
		f.reader = nil
		if err != nil {
			return nserr.New(nserr.ContainerIo, "close: "+f.path, err)
		}
	}
	return nil
}

// navFile returns a read-capable *h5.File view of the file structure
// that existed when this handle was opened: the reader itself in read
// mode, or the write session's loaded snapshot in write mode. It only
// ever needs to resolve datasets/groups that predate this session —
// everything created during this session lives in states/createdGroups.
func (f *File) navFile() *h5.File {
	if f.reader != nil {
		return f.reader
	}
	return f.writer.File()
}

func findDataset(root *h5.File, path string) (*h5.Dataset, bool) {
	if root == nil {
		return nil, false
	}
	var found *h5.Dataset
	root.Walk(func(p string, obj h5.Object) {
		if found != nil || p != path {
			return
		}
		if ds, ok := obj.(*h5.Dataset); ok {
			found = ds
		}
	})
	return found, found != nil
}

func groupExists(root *h5.File, path string) bool {
	if root == nil {
		return false
	}
	exists := false
	root.Walk(func(p string, obj h5.Object) {
		if exists || p != path {
			return
		}
		if _, ok := obj.(*h5.Group); ok {
			exists = true
		}
	})
	return exists
}

// ensureGroupPath creates every ancestor group of path that does not yet
// exist, root-down, so CreateOrExtend can target a dataset under a
// schema hierarchy like /Populations/<pop>/Trees without the caller
// pre-creating groups (spec §6.1).
func (f *File) ensureGroupPath(path string) error {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return nil
	}
	dir := path[:idx]

	var cur string
	for _, seg := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		cur += "/" + seg
		if f.createdGroups[cur] {
			continue
		}
		if groupExists(f.writer.File(), cur) {
			f.createdGroups[cur] = true
			continue
		}
		if _, err := f.writer.CreateGroup(cur); err != nil {
			return nserr.New(nserr.ContainerIo, "create group "+cur, err)
		}
		f.createdGroups[cur] = true
	}
	return nil
}

// DatasetExtent returns the number of elements on the outermost axis of
// the dataset at path, or 0 if it does not yet exist.
func (f *File) DatasetExtent(path string) (uint64, error) {
	f.acquireIO()
	defer f.releaseIO()
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.states[path]; ok {
		return uint64(nativeLen(st.buf)), nil
	}

	root := f.navFile()
	ds, ok := findDataset(root, path)
	if !ok {
		return 0, nil
	}
	dims, err := ds.Dims()
	if err != nil {
		return 0, nserr.New(nserr.ContainerIo, "dataset_extent: "+path, err)
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

func elemDatatype(e ElemType) h5.Datatype {
	switch e {
	case U8:
		return h5.Uint8
	case U16:
		return h5.Uint16
	case U32:
		return h5.Uint32
	case U64:
		return h5.Uint64
	case I32:
		return h5.Int32
	case F32:
		return h5.Float32
	case EnumU8:
		return h5.EnumUint8
	default:
		return h5.Uint8
	}
}

// resolveExistingLocked returns the in-memory state for path, seeding it
// from disk on first touch if the dataset already existed (reopened
// file). It never creates a dataset: if path is neither in memory nor on
// disk it reports existed=false, and CreateOrExtend is the sole creator.
func (f *File) resolveExistingLocked(path string) (*datasetState, bool, error) {
	if st, ok := f.states[path]; ok {
		return st, true, nil
	}
	root := f.navFile()
	ds, ok := findDataset(root, path)
	if !ok {
		return nil, false, nil
	}
	dims, err := ds.Dims()
	if err != nil {
		return nil, false, nserr.New(nserr.ContainerIo, "dims: "+path, err)
	}
	curLen := uint64(0)
	if len(dims) > 0 {
		curLen = dims[0]
	}
	var raw interface{} = nil
	if curLen > 0 {
		raw, err = ds.ReadSlice([]uint64{0}, []uint64{curLen})
		if err != nil {
			return nil, false, nserr.New(nserr.ContainerIo, "seed read: "+path, err)
		}
	}
	dtype, err := dtypeFromNative(raw)
	if err != nil {
		return nil, false, nserr.New(nserr.InvariantViolation, path, err)
	}
	if raw == nil {
		raw, _ = zeroPayload(dtype, 0)
	}

	var dw *h5.DatasetWriter
	if f.rw {
		dw, err = f.writer.OpenDataset(path)
		if err != nil {
			return nil, false, nserr.New(nserr.ContainerIo, "open dataset: "+path, err)
		}
	}
	st := &datasetState{dtype: dtype, buf: raw, dw: dw}
	f.states[path] = st
	return st, true, nil
}

func dtypeFromNative(raw interface{}) (ElemType, error) {
	switch raw.(type) {
	case nil:
		return U8, nil
	case []uint8:
		return U8, nil
	case []uint16:
		return U16, nil
	case []uint32:
		return U32, nil
	case []uint64:
		return U64, nil
	case []float32:
		return F32, nil
	default:
		return 0, fmt.Errorf("unexpected native type %T for column", raw)
	}
}

// CreateOrExtend idempotently ensures the dataset at path exists with
// exactly newGlobalLen elements, creating it (chunked, unlimited on axis
// 0) on first use and growing it otherwise. It never shrinks a dataset
// (spec §4.A contract): a newGlobalLen below the current length is
// nserr.ExtentShrink.
func (f *File) CreateOrExtend(path string, dtype ElemType, newGlobalLen uint64, chunk uint64, enum *EnumSpec) error {
	if !f.rw {
		return nserr.New(nserr.ContainerIo, "create_or_extend: "+path, fmt.Errorf("file not opened for writing"))
	}
	if chunk == 0 {
		chunk = 1
	}

	f.acquireIO()
	defer f.releaseIO()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureGroupPath(path); err != nil {
		return err
	}

	st, existed, err := f.resolveExistingLocked(path)
	if err != nil {
		return err
	}

	if !existed {
		opts := []h5.DatasetOption{
			h5.WithChunkDims([]uint64{chunk}),
			h5.WithMaxDims([]uint64{h5.Unlimited}),
		}
		if dtype == EnumU8 {
			if enum == nil {
				return nserr.New(nserr.InvariantViolation, path, fmt.Errorf("enum column requires an EnumSpec"))
			}
			opts = append(opts, h5.WithEnumValues(enum.Names, enum.Values))
		}
		dw, err := f.writer.CreateDataset(path, elemDatatype(dtype), []uint64{newGlobalLen}, opts...)
		if err != nil {
			return nserr.New(nserr.ContainerIo, "create dataset "+path, err)
		}
		zero, err := zeroPayload(dtype, newGlobalLen)
		if err != nil {
			return nserr.New(nserr.InvariantViolation, path, err)
		}
		if err := dw.Write(zero); err != nil {
			return nserr.New(nserr.ContainerIo, "zero-init "+path, err)
		}
		f.states[path] = &datasetState{dtype: dtype, buf: zero, dw: dw}
		return nil
	}

	curLen := uint64(nativeLen(st.buf))
	if newGlobalLen < curLen {
		return nserr.New(nserr.ExtentShrink, path, fmt.Errorf("new length %d < existing length %d", newGlobalLen, curLen))
	}
	if newGlobalLen == curLen {
		return nil
	}

	st.buf = growZero(st.dtype, st.buf, newGlobalLen)
	if err := st.dw.Resize([]uint64{newGlobalLen}); err != nil {
		return nserr.New(nserr.ContainerIo, "resize "+path, err)
	}
	if err := st.dw.Write(st.buf); err != nil {
		return nserr.New(nserr.ContainerIo, "extend "+path, err)
	}
	return nil
}

func nativeLen(buf interface{}) int {
	switch v := buf.(type) {
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	default:
		return 0
	}
}

func growZero(dtype ElemType, buf interface{}, newLen uint64) interface{} {
	switch dtype {
	case U8, EnumU8:
		v := buf.([]uint8)
		out := make([]uint8, newLen)
		copy(out, v)
		return out
	case U16:
		v := buf.([]uint16)
		out := make([]uint16, newLen)
		copy(out, v)
		return out
	case U32, I32:
		v := buf.([]uint32)
		out := make([]uint32, newLen)
		copy(out, v)
		return out
	case U64:
		v := buf.([]uint64)
		out := make([]uint64, newLen)
		copy(out, v)
		return out
	case F32:
		v := buf.([]float32)
		out := make([]float32, newLen)
		copy(out, v)
		return out
	default:
		return buf
	}
}

func zeroPayload(dtype ElemType, n uint64) (interface{}, error) {
	switch dtype {
	case U8, EnumU8:
		return make([]uint8, n), nil
	case U16:
		return make([]uint16, n), nil
	case U32, I32:
		return make([]uint32, n), nil
	case U64:
		return make([]uint64, n), nil
	case F32:
		return make([]float32, n), nil
	default:
		return nil, fmt.Errorf("unsupported element type %d", dtype)
	}
}

func convertTo[T Numeric, O Numeric](in []T) []O {
	out := make([]O, len(in))
	for i, v := range in {
		out[i] = O(v)
	}
	return out
}

// toAny converts data to the native wire-width slice for dtype. A
// same-width Go conversion between int32 and uint32 round-trips the
// two's-complement bit pattern exactly, so I32 shares U32's uint32
// representation (matching core.DecodeNative's read-back type and
// encodeFixedPointData, which accepts either Go type for a 4-byte
// fixed-point column).
func toAny[T Numeric](dtype ElemType, data []T) interface{} {
	switch dtype {
	case U8, EnumU8:
		return convertTo[T, uint8](data)
	case U16:
		return convertTo[T, uint16](data)
	case U32, I32:
		return convertTo[T, uint32](data)
	case U64:
		return convertTo[T, uint64](data)
	case F32:
		return convertTo[T, float32](data)
	default:
		return nil
	}
}

// copyInto overwrites buf[start:start+len(src)] in place; buf and src
// must share dtype's native wire-width type (as produced by toAny).
func copyInto(buf interface{}, start uint64, src interface{}) {
	switch dst := buf.(type) {
	case []uint8:
		copy(dst[start:], src.([]uint8))
	case []uint16:
		copy(dst[start:], src.([]uint16))
	case []uint32:
		copy(dst[start:], src.([]uint32))
	case []uint64:
		copy(dst[start:], src.([]uint64))
	case []float32:
		copy(dst[start:], src.([]float32))
	}
}

func sliceConvert[T Numeric](buf interface{}, start, length uint64) ([]T, error) {
	switch v := buf.(type) {
	case []uint8:
		return convertTo[uint8, T](v[start : start+length]), nil
	case []uint16:
		return convertTo[uint16, T](v[start : start+length]), nil
	case []uint32:
		return convertTo[uint32, T](v[start : start+length]), nil
	case []uint64:
		return convertTo[uint64, T](v[start : start+length]), nil
	case []float32:
		return convertTo[float32, T](v[start : start+length]), nil
	default:
		return nil, fmt.Errorf("unexpected native type %T for column", buf)
	}
}

// WriteSlab writes data — this rank's contribution, per the layout
// planner — into [localStart, localStart+localLen) of the dataset at
// path, whose outermost axis must already have been extended to
// globalLen by CreateOrExtend. Every process must call with a
// consistent globalLen and non-overlapping ranges (spec §4.A contract);
// the in-process communicator simulation enforces the call sequence
// that makes that true. Persistence is a whole-buffer rewrite via the
// underlying Write+Resize primitives, which always replace the full
// chunked B-tree rather than patching a sub-range.
func WriteSlab[T Numeric](f *File, path string, dtype ElemType, globalLen, localStart, localLen uint64, data []T) error {
	if uint64(len(data)) != localLen {
		return nserr.New(nserr.InvariantViolation, path, fmt.Errorf("data length %d != localLen %d", len(data), localLen))
	}

	f.acquireIO()
	defer f.releaseIO()
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.rw {
		return nserr.New(nserr.ContainerIo, "write_slab: "+path, fmt.Errorf("file not opened for writing"))
	}

	st, existed, err := f.resolveExistingLocked(path)
	if err != nil {
		return err
	}
	if !existed {
		return nserr.New(nserr.ContainerIo, "write_slab: "+path, fmt.Errorf("dataset does not exist; call CreateOrExtend first"))
	}

	curLen := uint64(nativeLen(st.buf))
	if curLen != globalLen {
		return nserr.New(nserr.LayoutOverlap, path, fmt.Errorf("dataset length %d does not match planned global_len %d; ranges are not contiguous", curLen, globalLen))
	}
	if localStart+localLen > curLen {
		return nserr.New(nserr.InvariantViolation, path, fmt.Errorf("slab [%d,%d) exceeds dataset length %d", localStart, localStart+localLen, curLen))
	}

	copyInto(st.buf, localStart, toAny(dtype, data))
	if err := st.dw.Write(st.buf); err != nil {
		return nserr.New(nserr.ContainerIo, "write_slab "+path, err)
	}
	return nil
}

// ReadSlab reads the hyperslab [localStart, localStart+localLen) from
// the dataset at path.
func ReadSlab[T Numeric](f *File, path string, localStart, localLen uint64) ([]T, error) {
	if localLen == 0 {
		return []T{}, nil
	}

	f.acquireIO()
	defer f.releaseIO()
	f.mu.Lock()
	defer f.mu.Unlock()

	st, existed, err := f.resolveExistingLocked(path)
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, nserr.New(nserr.ContainerIo, "read_slab: "+path, fmt.Errorf("dataset not found"))
	}
	if localStart+localLen > uint64(nativeLen(st.buf)) {
		return nil, nserr.New(nserr.InvariantViolation, path, fmt.Errorf("slab [%d,%d) exceeds dataset length %d", localStart, localStart+localLen, nativeLen(st.buf)))
	}
	return sliceConvert[T](st.buf, localStart, localLen)
}
