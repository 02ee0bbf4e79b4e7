package cellindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurolib/neurostore/cellindex"
	"github.com/neurolib/neurostore/collective"
	"github.com/neurolib/neurostore/containerfs"
	"github.com/neurolib/neurostore/idtypes"
	"github.com/neurolib/neurostore/layout"
	"github.com/neurolib/neurostore/nserr"
)

func TestWriteReadIndex_TwoRanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.h5")
	f, err := containerfs.Open(path, true)
	require.NoError(t, err)

	comms := collective.NewLocalCommunicator(2)
	stripes := [][]idtypes.CellId{{100}, {200}}

	err = collective.RunCollective(context.Background(), comms, func(ctx context.Context, comm collective.Communicator) error {
		rng, err := layout.Plan(ctx, comm, uint64(len(stripes[comm.Rank()])), 0)
		if err != nil {
			return err
		}
		return cellindex.WriteIndex(ctx, f, "L5", comm, rng, stripes[comm.Rank()])
	})
	require.NoError(t, err)

	got, err := cellindex.ReadIndex(f, "L5")
	require.NoError(t, err)
	assert.Equal(t, []idtypes.CellId{100, 200}, got)
	require.NoError(t, f.Close())
}

func TestReadIndex_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.h5")
	f, err := containerfs.Open(path, true)
	require.NoError(t, err)

	got, err := cellindex.ReadIndex(f, "L5")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, f.Close())
}

func TestValidateAgainstStripe_MatchAndMismatch(t *testing.T) {
	existing := []idtypes.CellId{10, 20, 30}

	require.NoError(t, cellindex.ValidateAgainstStripe(existing, 1, []idtypes.CellId{20, 30}))

	err := cellindex.ValidateAgainstStripe(existing, 1, []idtypes.CellId{21, 30})
	require.Error(t, err)
	assert.True(t, nserr.Is(err, nserr.IndexIncoherent))

	err = cellindex.ValidateAgainstStripe(existing, 2, []idtypes.CellId{30, 40})
	require.Error(t, err)
	assert.True(t, nserr.Is(err, nserr.IndexIncoherent))
}
