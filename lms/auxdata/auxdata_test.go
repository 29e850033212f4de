package auxdata_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbslabs/lms-core/lms/auxdata"
	"github.com/hbslabs/lms-core/lms/common"
)

func TestSelectLevelsPrefersLevelsNearestTheRoot(t *testing.T) {
	// H=5, n=32: level 5 (root) costs 32 bytes, level 4 costs 64, ...,
	// level 0 (leaves) costs 1024.
	levels := auxdata.SelectLevels(5, 32, 32+64+128)
	assert.Equal(t, []uint64{5, 4, 3}, levels)
}

func TestSelectLevelsEmptyBudgetSelectsNothing(t *testing.T) {
	levels := auxdata.SelectLevels(5, 32, 0)
	assert.Empty(t, levels)
}

func TestSelectLevelsFullBudgetSelectsEveryLevel(t *testing.T) {
	// Sum over d=0..H of 2^d * n covers every level including the leaves.
	var total uint64
	for d := uint64(0); d <= 5; d++ {
		total += (1 << d) * 32
	}
	levels := auxdata.SelectLevels(5, 32, total)
	assert.Len(t, levels, 6)
}

func TestBuildAndFromBytesRoundTrip(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	var id common.ID
	_, err = rand.Read(id[:])
	require.NoError(t, err)

	tc := common.LMS_SHA256_M32_H5
	otstc := common.LMOTS_SHA256_N32_W8

	tree, root, blob, err := auxdata.Build(tc, otstc, id, seed, 32*4)
	require.NoError(t, err)
	assert.NotEmpty(t, tree.Levels())

	parsed, trusted, err := auxdata.FromBytes(blob, tc, seed)
	require.NoError(t, err)
	assert.True(t, trusted)

	for _, level := range tree.Levels() {
		for i := uint64(0); ; i++ {
			want, ok := tree.Node(level, i)
			if !ok {
				break
			}
			got, ok := parsed.Node(level, i)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}

	full, err := auxdata.BuildFullTree(tc, otstc, id, seed)
	require.NoError(t, err)
	assert.Equal(t, full[0], root)
}

func TestFromBytesIgnoresATamperedBlob(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	var id common.ID
	_, err = rand.Read(id[:])
	require.NoError(t, err)

	tc := common.LMS_SHA256_M32_H5
	otstc := common.LMOTS_SHA256_N32_W8

	_, _, blob, err := auxdata.Build(tc, otstc, id, seed, 32*4)
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 1

	parsed, trusted, err := auxdata.FromBytes(tampered, tc, seed)
	assert.NoError(t, err)
	assert.False(t, trusted)
	assert.Nil(t, parsed)
}

func TestFromBytesRejectsAnUndersizedBlob(t *testing.T) {
	_, _, err := auxdata.FromBytes([]byte{1, 2, 3}, common.LMS_SHA256_M32_H5, []byte("seed"))
	assert.Error(t, err)
}
