// Package layout implements the collective layout planner (spec §4.B): a
// pure, stateless helper that turns each process's locally-held record
// count into a globally coherent write range, by one all-gather of
// lengths followed by a local prefix sum.
package layout

import (
	"context"

	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/nserr"
)

// Range is one process's share of a globally contiguous dataset append.
type Range struct {
	// LocalStart is this rank's first global index.
	LocalStart uint64
	// LocalLen is the number of elements this rank contributes.
	LocalLen uint64
	// GlobalEnd is the new tail of the dataset after every rank's
	// contribution is appended (identical on every rank).
	GlobalEnd uint64
}

// Plan computes (local_start, local_len, global_end) for this rank given
// its locally-held count n and the dataset's current global base offset
// base, per spec §4.B:
//
//	local_start = base + Σ_{k<rank} n_k
//	local_len   = n
//	global_end  = base + Σ_k n_k
//
// A rank contributing zero elements still participates in the exchange —
// collective mode requires every process to enter — but its resulting
// hyperslab is empty.
func Plan(ctx context.Context, comm collective.Communicator, n uint64, base uint64) (Range, error) {
	all, err := comm.AllGatherU64(ctx, n)
	if err != nil {
		return Range{}, nserr.New(nserr.CommunicatorFailure, "layout plan: all_gather lengths", err)
	}

	var before, total uint64
	rank := comm.Rank()
	for i, v := range all {
		if i < rank {
			before += v
		}
		total += v
	}

	return Range{
		LocalStart: base + before,
		LocalLen:   n,
		GlobalEnd:  base + total,
	}, nil
}

// PlanPointerFamily is Plan specialized for pointer-array column families
// (attr_ptr, sec_ptr, topo_ptr, dst_blk_ptr, dst_ptr): per spec §4.B, the
// last rank additionally advertises one trailing sentinel entry, so its
// locally-held count for the purpose of the exchange is n+1 while every
// other rank advertises exactly n. The returned Range.LocalLen always
// reports the caller's true element count n (the sentinel is implicit,
// not a data element); callers needing the advertised count for I/O
// purposes should add 1 when isLastRank is true.
func PlanPointerFamily(ctx context.Context, comm collective.Communicator, n uint64, base uint64, isLastRank bool) (Range, error) {
	advertised := n
	if isLastRank {
		advertised = n + 1
	}
	rng, err := Plan(ctx, comm, advertised, base)
	if err != nil {
		return Range{}, err
	}
	rng.LocalLen = n
	return rng, nil
}

// IsLastRank reports whether rank is the highest-numbered rank in a
// communicator of the given size — the rank responsible for contributing
// the trailing pointer-array sentinel.
func IsLastRank(rank, size int) bool {
	return rank == size-1
}
