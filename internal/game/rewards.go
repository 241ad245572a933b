package game

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"pumpdump/internal/ws"
)

const (
	// E8sPerDolr is the on-chain minor unit: 10^8 e8s per dolr.
	E8sPerDolr = 100_000_000
	// CentsPerDolr is the display minor unit: one bet costs one cent.
	CentsPerDolr = 100
)

// ErrInvalidSettlement marks a protocol-invariant violation in a game
// result: a declared winning side with zero total winning bets while this
// player holds a nonzero winning stake. Computing a payout from it would be
// meaningless, so the settlement is refused.
var ErrInvalidSettlement = errors.New("game: settlement violates protocol invariants")

// CentsFromE8s converts an e8s-denominated amount to cents, truncating
// toward zero. Every e8s conversion in the engine goes through here; the two
// scale factors never appear anywhere else.
func CentsFromE8s(e8s *big.Int) (uint64, error) {
	if e8s.Sign() < 0 {
		return 0, fmt.Errorf("game: negative e8s amount %s", e8s)
	}
	cents := new(big.Int).Mul(e8s, big.NewInt(CentsPerDolr))
	cents.Quo(cents, big.NewInt(E8sPerDolr))
	if !cents.IsUint64() {
		return 0, fmt.Errorf("game: amount %s out of range", cents)
	}
	return cents.Uint64(), nil
}

// ComputeResult settles a round against the player's own tallies.
//
// A player who bet equally on both sides (including not at all) neither
// gains nor loses. Otherwise the larger counter decides the player's
// effective direction and stake: on the losing side everything bet this
// round is forfeited, on the winning side the player takes
// floor(stake * pool / total) of the reward pool, converted from e8s to
// cents. Integer math throughout; the intermediate product can exceed 64
// bits so it runs through big.Int.
func ComputeResult(pumps, dumps uint64, res ws.GameResult) (Result, error) {
	if pumps == dumps {
		return Result{Outcome: OutcomeWin, Amount: 0}, nil
	}

	direction, stake := ws.Pump, pumps
	if dumps > pumps {
		direction, stake = ws.Dump, dumps
	}

	if direction != res.Direction {
		return Result{Outcome: OutcomeLoss, Amount: pumps + dumps}, nil
	}

	if res.BetCount == 0 {
		return Result{}, fmt.Errorf("%w: zero bet count against stake %d", ErrInvalidSettlement, stake)
	}
	if res.BetCount < stake {
		return Result{}, fmt.Errorf("%w: bet count %d below own stake %d", ErrInvalidSettlement, res.BetCount, stake)
	}

	share := new(big.Int).Mul(new(big.Int).SetUint64(stake), new(big.Int).SetUint64(res.RewardPool))
	share.Quo(share, new(big.Int).SetUint64(res.BetCount))

	amount, err := CentsFromE8s(share)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeWin, Amount: amount}, nil
}

// EstimatePlayerCount inflates the server-reported player count
// logarithmically for display.
func EstimatePlayerCount(reported uint64) uint64 {
	x := float64(reported)
	return uint64(math.Round(x + 4.0 + 20.0*math.Log10(math.Sqrt(x)+2.0)))
}
