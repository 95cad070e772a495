package airdrop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocationForRank(t *testing.T) {
	cases := []struct {
		rank   int64
		tokens string
	}{
		{1, "1000000000000000000000"},
		{100, "1000000000000000000000"},
		{101, "500000000000000000000"},
		{500, "500000000000000000000"},
		{501, "250000000000000000000"},
		{1000, "250000000000000000000"},
		{1001, "100000000000000000000"},
		{5000, "100000000000000000000"},
		{5001, "50000000000000000000"},
		{999999, "50000000000000000000"},
		{0, "50000000000000000000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.tokens, AllocationForRank(tc.rank).String(), "rank %d", tc.rank)
	}
}
