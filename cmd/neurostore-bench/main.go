// Command neurostore-bench drives a synthetic multi-rank collective write
// followed by a scatter-read over a freshly generated container, and
// reports throughput — a CLI collaborator per spec §6: it never touches
// the core packages' internals, only their public Append/ScatterRead
// surface, the same surface a real MPI-driven caller would use.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/graph"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/nserr"
	"github.com/neurolib/neurostore/population"
	"github.com/neurolib/neurostore/tree"
)

var rootCmd = &cobra.Command{
	Use:   "neurostore-bench",
	Short: "Drive a synthetic multi-rank collective write/scatter-read and report throughput",
	RunE:  runBench,
}

const (
	srcPopName = "exc"
	dstPopName = "inh"
	treeNodes  = 4
	fanout     = 2
)

func init() {
	rootCmd.Flags().String("file", "", "container file path (a temp file is used if empty)")
	rootCmd.Flags().Int("ranks", 4, "number of simulated collective ranks")
	rootCmd.Flags().Uint64("chunk-size", 1024, "chunk size passed to AppendGraph")
	rootCmd.Flags().Uint64("io-size", 10000, "number of destination nodes (and trees) to generate")
	rootCmd.Flags().Int("max-concurrent-io", 0, "cap on concurrent container I/O calls across ranks (0 = unbounded)")
	for _, name := range []string{"file", "ranks", "chunk-size", "io-size", "max-concurrent-io"} {
		if err := viper.BindPFlag(name, rootCmd.Flags().Lookup(name)); err != nil {
			log.Fatalf("neurostore-bench: %v", err)
		}
	}
	viper.SetEnvPrefix("NEUROSTORE")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("neurostore-bench: %v", err)
		os.Exit(nserr.ExitCode(err))
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	runID := uuid.New()
	ranks := viper.GetInt("ranks")
	chunkSize := viper.GetUint64("chunk-size")
	ioSize := viper.GetUint64("io-size")
	path := viper.GetString("file")
	if path == "" {
		f, err := os.CreateTemp("", "neurostore-bench-*.h5")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		path = f.Name()
		f.Close()
		defer os.Remove(path)
	}
	maxConcurrentIO := viper.GetInt("max-concurrent-io")
	log.Printf("[%s] ranks=%d chunk-size=%d io-size=%d max-concurrent-io=%d file=%s", runID, ranks, chunkSize, ioSize, maxConcurrentIO, path)

	f, err := containerfs.Open(path, true, containerfs.WithMaxConcurrentIO(maxConcurrentIO))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	names := population.Names{srcPopName, dstPopName}
	ranges := []population.PopRange{
		{Start: 0, Count: ioSize, Pop: 0},
		{Start: idtypes.NodeId(ioSize), Count: ioSize, Pop: 1},
	}
	pairs := []population.PopPair{{Src: 0, Dst: 1}}
	if err := population.WriteH5Types(f, 0, names, pairs, ranges); err != nil {
		return fmt.Errorf("write population table: %w", err)
	}

	proj := graph.ProjectionInfo{
		SrcName: srcPopName, DstName: dstPopName,
		SrcPop: 0, DstPop: 1,
		SrcStart: 0, DstStart: idtypes.NodeId(ioSize),
	}
	admissible := population.NewPairSet(pairs)

	comms := collective.NewLocalCommunicator(ranks)
	writeStart := time.Now()
	err = collective.RunCollective(context.Background(), comms, func(ctx context.Context, comm collective.Communicator) error {
		lo, hi := rankSplit(ioSize, comm.Rank(), comm.Size())

		trees := make([]tree.Tree, 0, hi-lo)
		for id := lo; id < hi; id++ {
			trees = append(trees, straightTree(idtypes.CellId(id), treeNodes))
		}
		if err := tree.AppendTrees(ctx, f, comm, srcPopName, trees, true); err != nil {
			return err
		}

		edges := make(graph.EdgeMap, hi-lo)
		for dst := lo; dst < hi; dst++ {
			entries := make([]graph.EdgeEntry, fanout)
			for i := 0; i < fanout; i++ {
				entries[i] = graph.EdgeEntry{Src: idtypes.NodeId((dst*uint64(fanout) + uint64(i)) % ioSize)}
			}
			edges[idtypes.NodeId(ioSize+dst)] = entries
		}
		return graph.AppendGraph(ctx, f, comm, proj, edges, nil, chunkSize)
	})
	writeElapsed := time.Since(writeStart)
	if err != nil {
		return fmt.Errorf("collective write: %w", err)
	}

	blkLen, err := f.DatasetExtent(graph.ColumnPath(proj, "dst_blk_ptr"))
	if err != nil {
		return fmt.Errorf("read dst_blk_ptr extent: %w", err)
	}
	numBlocks := uint64(0)
	if blkLen > 0 {
		numBlocks = blkLen - 1
	}

	results := make([]graph.ScatterResult, ranks)
	readStart := time.Now()
	err = collective.RunCollective(context.Background(), comms, func(ctx context.Context, comm collective.Communicator) error {
		nodeRankMap := func(n idtypes.NodeId) idtypes.PopRank {
			offset := uint64(n) - ioSize
			return idtypes.PopRank(rankOf(offset, ioSize, uint64(ranks)))
		}
		r, err := graph.ScatterReadProjection(ctx, f, comm, proj, admissible, nodeRankMap, graph.DestinationKeyed, nil, graph.Window{Offset: 0, NumItems: numBlocks})
		if err != nil {
			return err
		}
		results[comm.Rank()] = r
		return nil
	})
	readElapsed := time.Since(readStart)
	if err != nil {
		return fmt.Errorf("collective scatter-read: %w", err)
	}

	var totalEdges, totalNodes uint64
	for _, r := range results {
		totalEdges += r.LocalNumEdges
		totalNodes += r.LocalNumNodes
	}

	fmt.Printf("trees written: %d\n", ioSize)
	fmt.Printf("edges written: %d\n", ioSize*fanout)
	fmt.Printf("write elapsed: %s\n", writeElapsed)
	fmt.Printf("scatter-read elapsed: %s (%d destination nodes, %d edges delivered)\n", readElapsed, totalNodes, totalEdges)
	if readElapsed > 0 {
		fmt.Printf("scatter-read throughput: %.0f edges/sec\n", float64(totalEdges)/readElapsed.Seconds())
	}
	return nil
}

// rankSplit is the same deterministic even-division formula
// ScatterReadProjection uses to assign a contiguous [lo,hi) slice of a
// [0,total) space to rank r of size ranks, with no collective exchange.
func rankSplit(total uint64, rank, ranks int) (lo, hi uint64) {
	lo = (total * uint64(rank)) / uint64(ranks)
	hi = (total * uint64(rank+1)) / uint64(ranks)
	return lo, hi
}

// rankOf inverts rankSplit: which rank owns item i of a [0,total) space
// evenly divided across `ranks` parts.
func rankOf(i, total, ranks uint64) uint64 {
	for r := uint64(0); r < ranks; r++ {
		lo, hi := rankSplit(total, int(r), int(ranks))
		if i >= lo && i < hi {
			return r
		}
	}
	return ranks - 1
}

func straightTree(id idtypes.CellId, n int) tree.Tree {
	t := tree.Tree{
		CellId:     id,
		Sections:   make([]idtypes.SectionIdx, n),
		X:          make([]idtypes.Coord, n),
		Y:          make([]idtypes.Coord, n),
		Z:          make([]idtypes.Coord, n),
		Radius:     make([]idtypes.RealVal, n),
		Layer:      make([]idtypes.LayerIdx, n),
		Parent:     make([]idtypes.ParentNodeIdx, n),
		SwcType:    make([]idtypes.SwcType, n),
		SrcSection: []idtypes.SectionIdx{0},
		DstSection: []idtypes.SectionIdx{0},
	}
	for i := 0; i < n; i++ {
		t.X[i] = idtypes.Coord(i)
		t.Radius[i] = 1
		t.SwcType[i] = idtypes.SwcSoma
		if i == 0 {
			t.Parent[i] = idtypes.NoParent
		} else {
			t.Parent[i] = idtypes.ParentNodeIdx(i - 1)
		}
	}
	return t
}
