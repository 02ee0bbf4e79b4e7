package population_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/nserr"
	"github.com/neurolib/neurostore/population"
)

func TestRangeTable_RankOf(t *testing.T) {
	rt, err := population.NewRangeTable([]population.PopRange{
		{Start: 0, Count: 10, Pop: 0},
		{Start: 10, Count: 5, Pop: 1},
	})
	require.NoError(t, err)

	pop, off, ok := rt.RankOf(12)
	require.True(t, ok)
	assert.Equal(t, idtypes.Pop(1), pop)
	assert.Equal(t, uint64(2), off)

	_, _, ok = rt.RankOf(15)
	assert.False(t, ok)
}

func TestRangeTable_RejectsOverlap(t *testing.T) {
	_, err := population.NewRangeTable([]population.PopRange{
		{Start: 0, Count: 10, Pop: 0},
		{Start: 5, Count: 5, Pop: 1},
	})
	require.Error(t, err)
	assert.True(t, nserr.Is(err, nserr.InvariantViolation))
}

func TestPairSet_Allows(t *testing.T) {
	ps := population.NewPairSet([]population.PopPair{{Src: 0, Dst: 1}})
	assert.True(t, ps.Allows(0, 1))
	assert.False(t, ps.Allows(1, 0))
}

func TestWriteReadH5Types_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.h5")
	f, err := containerfs.Open(path, true)
	require.NoError(t, err)

	names := population.Names{"L5_exc", "L5_inh"}
	pairs := []population.PopPair{{Src: 0, Dst: 1}, {Src: 1, Dst: 1}}
	ranges := []population.PopRange{
		{Start: 0, Count: 100, Pop: 0},
		{Start: 100, Count: 50, Pop: 1},
	}

	require.NoError(t, population.WriteH5Types(f, 0, names, pairs, ranges))

	gotNames, gotPairs, gotRanges, err := population.ReadH5Types(f)
	require.NoError(t, err)
	assert.Equal(t, names, gotNames)
	assert.ElementsMatch(t, pairs, gotPairs)
	assert.Equal(t, ranges, gotRanges)
	require.NoError(t, f.Close())
}

func TestWriteH5Types_NonZeroRankIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.h5")
	f, err := containerfs.Open(path, true)
	require.NoError(t, err)

	require.NoError(t, population.WriteH5Types(f, 1, nil, nil, nil))
	extent, err := f.DatasetExtent("/H5Types/pop_range_start")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), extent)
	require.NoError(t, f.Close())
}
