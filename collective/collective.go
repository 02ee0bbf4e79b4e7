// Package collective provides a bulk-synchronous-parallel communicator
// abstraction. It simulates a multi-process MPI-style communicator as a
// set of in-process goroutines, one per rank, coordinated with channels
// and golang.org/x/sync/errgroup — standing in for the real MPI
// communicator consumed by the core per spec §6.2, so the collective-call
// contract (every process enters, every process observes the same error
// kind or everyone observes success) can be exercised without a real MPI
// runtime.
package collective

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/neurolib/neurostore/nserr"
)

// Communicator is the collective surface the core requires from its
// process-group collaborator (§6.2): point-to-point is not needed by the
// core algorithms, only collective all-gather, all-to-all-variable,
// broadcast, barrier and communicator split.
type Communicator interface {
	// Rank returns this process's position in the communicator, [0, Size).
	Rank() int
	// Size returns the number of processes in the communicator.
	Size() int
	// AllGatherU64 exchanges one uint64 per rank and returns the full
	// vector, ordered by rank ascending, identically on every rank.
	AllGatherU64(ctx context.Context, v uint64) ([]uint64, error)
	// AllToAllV delivers send[r] to rank r and returns, for this rank,
	// the slice of byte buffers received from every other rank, ordered
	// by sender rank ascending. len(send) must equal Size().
	AllToAllV(ctx context.Context, send [][]byte) ([][]byte, error)
	// Broadcast distributes v from root to every rank.
	Broadcast(ctx context.Context, root int, v []byte) ([]byte, error)
	// Barrier blocks until every rank has entered.
	Barrier(ctx context.Context) error
	// Split partitions the communicator into sub-communicators sharing
	// the same color; key determines rank order within the new group.
	Split(ctx context.Context, color, key int) (Communicator, error)
	// ReduceError implements the §7 propagation policy: if any rank
	// passes a non-nil local error, every rank's call returns a non-nil
	// error built from the first error observed in rank order, wrapped
	// as nserr.CommunicatorFailure unless it already carries a Kind.
	ReduceError(ctx context.Context, local error) error
}

// localGroup is the shared state backing a set of in-process ranks
// produced by NewLocalCommunicator. All collective operations are
// implemented as one round of the group's members rendezvousing on a
// shared set of channels guarded by a mutex + generation counter, so each
// collective call from every rank must arrive before any rank proceeds.
type localGroup struct {
	size int

	mu  sync.Mutex
	gen int

	// per-generation rendezvous state, reset at the start of each op.
	arrived  int
	done     chan struct{}
	gatherIn []uint64
	a2aIn    [][][]byte
	bcastIn  [][]byte
}

func newLocalGroup(size int) *localGroup {
	g := &localGroup{size: size}
	g.resetLocked()
	return g
}

func (g *localGroup) resetLocked() {
	g.arrived = 0
	g.done = make(chan struct{})
	g.gatherIn = make([]uint64, g.size)
	g.a2aIn = make([][][]byte, g.size)
	g.bcastIn = make([][]byte, g.size)
}

// rendezvous blocks the calling rank until all g.size ranks have called
// rendezvous for the current generation, then returns a reference to the
// generation's rendezvous state. The caller supplied by fn runs exactly
// once per generation (the last arriving rank runs it) before the
// barrier opens.
func (g *localGroup) rendezvous(fn func()) *localGroup {
	g.mu.Lock()
	g.arrived++
	last := g.arrived == g.size
	done := g.done
	if last {
		fn()
		close(done)
		g.gen++
		g.resetLocked()
	}
	g.mu.Unlock()
	<-done
	return g
}

// localComm is one rank's handle onto a localGroup.
type localComm struct {
	rank  int
	group *localGroup
}

// NewLocalCommunicator builds size in-process communicator handles, one
// per simulated rank, sharing a single rendezvous group. size == 1 is a
// valid, fully functional degenerate case (§8 property 7,
// rank-invariance: the same code path runs regardless of process count).
func NewLocalCommunicator(size int) []Communicator {
	if size <= 0 {
		size = 1
	}
	g := newLocalGroup(size)
	out := make([]Communicator, size)
	for r := 0; r < size; r++ {
		out[r] = &localComm{rank: r, group: g}
	}
	return out
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.group.size }

func (c *localComm) AllGatherU64(_ context.Context, v uint64) ([]uint64, error) {
	g := c.group
	g.mu.Lock()
	// Stash this rank's contribution before rendezvousing.
	if g.gatherIn == nil || len(g.gatherIn) != g.size {
		g.gatherIn = make([]uint64, g.size)
	}
	g.gatherIn[c.rank] = v
	result := g.gatherIn
	g.mu.Unlock()

	g.rendezvous(func() {})
	out := make([]uint64, len(result))
	copy(out, result)
	return out, nil
}

func (c *localComm) AllToAllV(_ context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != c.group.size {
		return nil, fmt.Errorf("all_to_all_v: send length %d != communicator size %d", len(send), c.group.size)
	}
	g := c.group
	g.mu.Lock()
	if g.a2aIn == nil || len(g.a2aIn) != g.size {
		g.a2aIn = make([][][]byte, g.size)
	}
	for dst, buf := range send {
		if g.a2aIn[dst] == nil {
			g.a2aIn[dst] = make([][]byte, g.size)
		}
		g.a2aIn[dst][c.rank] = buf
	}
	in := g.a2aIn
	g.mu.Unlock()

	g.rendezvous(func() {})

	out := make([][]byte, c.group.size)
	for src := 0; src < c.group.size; src++ {
		out[src] = in[c.rank][src]
	}
	return out, nil
}

func (c *localComm) Broadcast(_ context.Context, root int, v []byte) ([]byte, error) {
	g := c.group
	g.mu.Lock()
	if c.rank == root {
		g.bcastIn[root] = v
	}
	in := g.bcastIn
	g.mu.Unlock()

	g.rendezvous(func() {})
	return in[root], nil
}

func (c *localComm) Barrier(_ context.Context) error {
	c.group.rendezvous(func() {})
	return nil
}

func (c *localComm) Split(_ context.Context, color, key int) (Communicator, error) {
	// Collect (rank, color, key) from every member, deterministically,
	// by reusing the all-gather rendezvous machinery encoded as a
	// packed uint64 (color in the high 32 bits, key in the low 32).
	packed := uint64(uint32(color))<<32 | uint64(uint32(key))
	all, err := c.AllGatherU64(context.Background(), packed)
	if err != nil {
		return nil, err
	}

	type member struct {
		origRank int
		key      int
	}
	var mine []member
	for r, p := range all {
		rc := int(int32(p >> 32))
		rk := int(int32(p & 0xFFFFFFFF))
		if rc == color {
			mine = append(mine, member{origRank: r, key: rk})
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].key < mine[j].key })

	newSize := len(mine)
	newRank := -1
	for i, m := range mine {
		if m.origRank == c.rank {
			newRank = i
		}
	}
	if newRank < 0 {
		return nil, fmt.Errorf("split: rank %d missing from its own color group", c.rank)
	}
	// Each distinct color gets an independent rendezvous group; since
	// Split is itself collective, every member with this color
	// allocates a correctly-sized group deterministically from the
	// gathered membership, without needing further coordination.
	return &splitComm{rank: newRank, group: newLocalGroup(newSize)}, nil
}

// splitComm is identical in behavior to localComm; kept distinct only so
// Split's return type is unambiguous about being a fresh sub-communicator.
type splitComm = localComm

func (c *localComm) ReduceError(ctx context.Context, local error) error {
	kind := ""
	msg := ""
	if local != nil {
		if e, ok := local.(*nserr.Error); ok {
			kind = string(e.Kind)
		} else {
			kind = string(nserr.CommunicatorFailure)
		}
		msg = local.Error()
	}
	// Encode presence/kind/message length as a broadcast-friendly byte
	// vector and gather it from every rank so a local-only failure is
	// promoted to a collective abort, per §7.
	buf := []byte(kind + "\x00" + msg)
	gathered, err := c.gatherBytes(ctx, buf)
	if err != nil {
		return nserr.New(nserr.CommunicatorFailure, "reduce_error: gather failed", err)
	}
	for _, g := range gathered {
		if len(g) == 0 {
			continue
		}
		parts := splitOnce(g)
		if parts[0] == "" {
			continue
		}
		return &nserr.Error{Kind: nserr.Kind(parts[0]), Context: "collective call", Cause: fmt.Errorf("%s", parts[1])}
	}
	return nil
}

func splitOnce(b []byte) [2]string {
	for i, c := range b {
		if c == 0 {
			return [2]string{string(b[:i]), string(b[i+1:])}
		}
	}
	return [2]string{"", string(b)}
}

func (c *localComm) gatherBytes(_ context.Context, v []byte) ([][]byte, error) {
	g := c.group
	g.mu.Lock()
	if g.a2aIn == nil || len(g.a2aIn) != g.size {
		g.a2aIn = make([][][]byte, g.size)
	}
	if g.a2aIn[0] == nil {
		g.a2aIn[0] = make([][]byte, g.size)
	}
	g.a2aIn[0][c.rank] = v
	result := g.a2aIn[0]
	g.mu.Unlock()

	g.rendezvous(func() {})
	out := make([][]byte, len(result))
	copy(out, result)
	return out, nil
}

// RunCollective drives fn once per rank of comms concurrently via
// errgroup, waiting for every rank to finish and returning the first
// error encountered — grounded on the errgroup fan-out/fan-in idiom used
// throughout junjiewwang-perf-analysis's worker pool and hprof parallel
// stages. Callers that need the §7 "every rank observes the same error"
// guarantee should have fn call comm.ReduceError before returning.
func RunCollective(ctx context.Context, comms []Communicator, fn func(ctx context.Context, comm Communicator) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			return fn(ctx, c)
		})
	}
	return g.Wait()
}
