// Command neurostore-dump opens a container file and prints the
// population, tree, and projection layout it finds — a read-only
// inspection collaborator in the sense of spec §6: the core packages
// never import cobra or viper, they only expose the typed read APIs
// this command calls.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neurolib/neurostore/cellindex"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/graph"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/nserr"
	"github.com/neurolib/neurostore/population"
	"github.com/neurolib/neurostore/tree"
)

var rootCmd = &cobra.Command{
	Use:   "neurostore-dump",
	Short: "Print the population/tree/projection layout of a neurostore container",
	RunE:  runDump,
}

func init() {
	rootCmd.Flags().String("file", "", "path to the container file (required)")
	rootCmd.Flags().Bool("verbose", false, "print per-population and per-projection detail")
	if err := rootCmd.MarkFlagRequired("file"); err != nil {
		log.Fatalf("neurostore-dump: %v", err)
	}
	if err := viper.BindPFlag("file", rootCmd.Flags().Lookup("file")); err != nil {
		log.Fatalf("neurostore-dump: %v", err)
	}
	if err := viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose")); err != nil {
		log.Fatalf("neurostore-dump: %v", err)
	}
	viper.SetEnvPrefix("NEUROSTORE")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("neurostore-dump: %v", err)
		os.Exit(nserr.ExitCode(err))
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	path := viper.GetString("file")
	verbose := viper.GetBool("verbose")

	f, err := containerfs.Open(path, false)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	names, pairs, ranges, err := population.ReadH5Types(f)
	if err != nil {
		return fmt.Errorf("read population table: %w", err)
	}

	fmt.Fprintf(os.Stdout, "populations: %d\n", len(ranges))
	for _, r := range ranges {
		name := popName(names, r.Pop)
		fmt.Fprintf(os.Stdout, "  pop %d (%s): nodes [%d,%d)\n", r.Pop, name, r.Start, r.End())
		if verbose {
			dumpTrees(f, name)
		}
	}

	fmt.Fprintf(os.Stdout, "admissible projection pairs: %d\n", len(pairs))
	for _, p := range pairs {
		srcName, dstName := popName(names, p.Src), popName(names, p.Dst)
		fmt.Fprintf(os.Stdout, "  %s(%d) -> %s(%d)\n", srcName, p.Src, dstName, p.Dst)
		if verbose {
			dumpProjection(f, srcName, dstName)
		}
	}
	return nil
}

func popName(names population.Names, p idtypes.Pop) string {
	if int(p) < len(names) {
		return names[p]
	}
	return "?"
}

func dumpTrees(f *containerfs.File, pop string) {
	ptrLen, err := f.DatasetExtent(tree.ColumnPath(pop, "attr_ptr"))
	if err != nil {
		return
	}
	numTrees := uint64(0)
	if ptrLen > 0 {
		numTrees = ptrLen - 1
	}
	ids, err := cellindex.ReadIndex(f, pop)
	if err != nil {
		fmt.Fprintf(os.Stdout, "    trees: %d (cell index unreadable: %v)\n", numTrees, err)
		return
	}
	fmt.Fprintf(os.Stdout, "    trees: %d, indexed cells: %d\n", numTrees, len(ids))
}

// dumpProjection assumes the convention neurostore-bench follows: a
// projection's on-disk group is named after its source/destination
// population names. A container built by another writer using different
// projection names will simply show no dataset at that path.
func dumpProjection(f *containerfs.File, srcName, dstName string) {
	proj := graph.ProjectionInfo{SrcName: srcName, DstName: dstName}
	blkLen, err := f.DatasetExtent(graph.ColumnPath(proj, "dst_blk_ptr"))
	if err != nil {
		return
	}
	numBlocks := uint64(0)
	if blkLen > 0 {
		numBlocks = blkLen - 1
	}
	dstLen, err := f.DatasetExtent(graph.ColumnPath(proj, "dst_ptr"))
	if err != nil {
		return
	}
	numDestNodes := uint64(0)
	if dstLen > 0 {
		numDestNodes = dstLen - 1
	}
	numEdges, err := f.DatasetExtent(graph.ColumnPath(proj, "src_idx"))
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stdout, "    blocks: %d, destination nodes: %d, edges: %d\n", numBlocks, numDestNodes, numEdges)
}
