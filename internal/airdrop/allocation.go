package airdrop

import "math/big"

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// AllocationForRank maps a leaderboard rank to its token allocation in base
// units. Ranks are 1-based; rank 0 or below gets the floor tier.
func AllocationForRank(rank int64) *big.Int {
	var tokens int64
	switch {
	case rank >= 1 && rank <= 100:
		tokens = 1000
	case rank >= 1 && rank <= 500:
		tokens = 500
	case rank >= 1 && rank <= 1000:
		tokens = 250
	case rank >= 1 && rank <= 5000:
		tokens = 100
	default:
		tokens = 50
	}
	return new(big.Int).Mul(big.NewInt(tokens), weiPerToken)
}
