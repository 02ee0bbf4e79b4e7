// Package cellindex implements the Cell Index Writer/Reader (spec §4.C): a
// secondary, append-only dataset mapping each tree's position in the
// tree-encoder's pointer arrays back to its CellId, in the same
// rank-stripe order the tree codec writes.
//
// Writing the index alongside a tree append is optional (the tree
// encoder's create_index flag); when it is suppressed, the caller is
// presumed to have written a compatible index earlier, and the append
// must validate that its rank-stripe order still matches what is already
// on disk — on mismatch, IndexIncoherent (spec §4.C; this validation is
// required, not optional, per spec.md's REDESIGN FLAGS: the "TODO:
// validate cell index" branch must not be silently skipped).
package cellindex

import (
	"context"
	"fmt"

	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/layout"
	"github.com/neurolib/neurostore/nserr"
)

func indexPath(popName string) string {
	return "/Populations/" + popName + "/Trees/cell_index"
}

// WriteIndex collectively extends popName's cell_index dataset by this
// rank's stripe of ids, at the global position rng describes (computed by
// the caller via layout.Plan over len(ids)). comm.ReduceError applies the
// §7 propagation policy so that a local write failure on one rank is
// observed as the same failure on every rank, rather than leaving the
// index coherent on some ranks and truncated on others.
func WriteIndex(ctx context.Context, f *containerfs.File, popName string, comm collective.Communicator, rng layout.Range, ids []idtypes.CellId) error {
	localErr := writeIndexLocal(f, popName, rng, ids)
	return comm.ReduceError(ctx, localErr)
}

func writeIndexLocal(f *containerfs.File, popName string, rng layout.Range, ids []idtypes.CellId) error {
	path := indexPath(popName)
	if err := f.CreateOrExtend(path, containerfs.U64, rng.GlobalEnd, 256, nil); err != nil {
		return err
	}
	if rng.LocalLen == 0 {
		return nil
	}
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	return containerfs.WriteSlab(f, path, containerfs.U64, rng.GlobalEnd, rng.LocalStart, rng.LocalLen, raw)
}

// ReadIndex returns the full cell-id sequence in canonical per-tree
// position order.
func ReadIndex(f *containerfs.File, popName string) ([]idtypes.CellId, error) {
	path := indexPath(popName)
	n, err := f.DatasetExtent(path)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	raw, err := containerfs.ReadSlab[uint64](f, path, 0, n)
	if err != nil {
		return nil, err
	}
	out := make([]idtypes.CellId, len(raw))
	for i, v := range raw {
		out[i] = idtypes.CellId(v)
	}
	return out, nil
}

// ValidateAgainstStripe checks that a rank-stripe of CellIds about to be
// appended to the tree pointer arrays (without writing a fresh index
// entry) matches the CellIds already recorded at the same position in an
// existing cell_index. existing is the full on-disk index; stripe is the
// CellId sequence this rank is about to append, in order. On any length
// or positional mismatch, returns nserr.IndexIncoherent.
func ValidateAgainstStripe(existing []idtypes.CellId, stripeStart uint64, stripe []idtypes.CellId) error {
	if stripeStart+uint64(len(stripe)) > uint64(len(existing)) {
		return nserr.New(nserr.IndexIncoherent, "cell index validation",
			fmt.Errorf("stripe [%d,%d) exceeds existing index length %d",
				stripeStart, stripeStart+uint64(len(stripe)), len(existing)))
	}
	for i, want := range stripe {
		got := existing[stripeStart+uint64(i)]
		if got != want {
			return nserr.New(nserr.IndexIncoherent, "cell index validation",
				fmt.Errorf("position %d: index has cell_id %d, stripe supplies %d", stripeStart+uint64(i), got, want))
		}
	}
	return nil
}
