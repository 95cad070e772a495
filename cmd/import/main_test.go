package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeaderboard(t *testing.T) {
	csv := `Wallet,XP,Rank
0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA,9000,1
not-an-address,10,2
0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB,100,5001
`
	rows, skipped, err := parseLeaderboard(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 2)

	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", rows[0].WalletAddress)
	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, "1000000000000000000000", rows[0].AllocatedAmount)
	assert.Equal(t, "50000000000000000000", rows[1].AllocatedAmount)
}

func TestParseLeaderboardHeaderAliases(t *testing.T) {
	csv := `wallet_address,xp_points,rank
0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA,500,50
`
	rows, skipped, err := parseLeaderboard(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(500), rows[0].XPPoints)
	assert.Equal(t, int64(50), rows[0].Rank)
	assert.Equal(t, "1000000000000000000000", rows[0].AllocatedAmount)
}

func TestParseLeaderboardByteOrderMark(t *testing.T) {
	csv := "\uFEFFWallet,XP,Rank\n0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA,500,50\n"
	rows, _, err := parseLeaderboard(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(50), rows[0].Rank)
}

func TestParseLeaderboardRankFromRowOrder(t *testing.T) {
	csv := "wallet_address\n0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA\n0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB\n"
	rows, skipped, err := parseLeaderboard(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, int64(2), rows[1].Rank)
}

func TestParseLeaderboardMissingAddressColumn(t *testing.T) {
	_, _, err := parseLeaderboard(strings.NewReader("rank\n1\n"))
	assert.Error(t, err)
}
