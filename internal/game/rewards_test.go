package game_test

import (
	"errors"
	"math/big"
	"testing"

	"pumpdump/internal/game"
	"pumpdump/internal/ws"
)

// centsPool expresses a pool of the given cents in e8s, the unit game
// results arrive in.
func centsPool(cents uint64) uint64 {
	return cents * (game.E8sPerDolr / game.CentsPerDolr)
}

func TestComputeResult_TieAlwaysWinsZero(t *testing.T) {
	cases := []struct {
		name         string
		pumps, dumps uint64
		direction    ws.Direction
	}{
		{"zero bets pump wins", 0, 0, ws.Pump},
		{"zero bets dump wins", 0, 0, ws.Dump},
		{"equal bets pump wins", 2, 2, ws.Pump},
		{"equal bets dump wins", 7, 7, ws.Dump},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := game.ComputeResult(tc.pumps, tc.dumps, ws.GameResult{
				Direction:  tc.direction,
				RewardPool: centsPool(1000),
				BetCount:   50,
				NewRound:   2,
			})
			if err != nil {
				t.Fatalf("ComputeResult() error = %v", err)
			}
			if res.Outcome != game.OutcomeWin || res.Amount != 0 {
				t.Errorf("ComputeResult() = %+v, want zero win", res)
			}
		})
	}
}

func TestComputeResult_LossForfeitsBothSides(t *testing.T) {
	res, err := game.ComputeResult(3, 1, ws.GameResult{
		Direction:  ws.Dump,
		RewardPool: centsPool(40),
		BetCount:   8,
	})
	if err != nil {
		t.Fatalf("ComputeResult() error = %v", err)
	}
	if res.Outcome != game.OutcomeLoss {
		t.Fatalf("Outcome = %v, want loss", res.Outcome)
	}
	if res.Amount != 4 {
		t.Errorf("Amount = %d, want 4 (pumps + dumps)", res.Amount)
	}
}

func TestComputeResult_WinProportionalShare(t *testing.T) {
	// 3 pump votes of 8 winning bets over a 40 cent pool
	res, err := game.ComputeResult(3, 1, ws.GameResult{
		Direction:  ws.Pump,
		RewardPool: centsPool(40),
		BetCount:   8,
	})
	if err != nil {
		t.Fatalf("ComputeResult() error = %v", err)
	}
	if res.Outcome != game.OutcomeWin {
		t.Fatalf("Outcome = %v, want win", res.Outcome)
	}
	if res.Amount != 15 {
		t.Errorf("Amount = %d, want 15", res.Amount)
	}
}

func TestComputeResult_WinTruncatesTowardZero(t *testing.T) {
	// floor(2 * 25 / 3) = 16 cents, never rounded up
	res, err := game.ComputeResult(2, 0, ws.GameResult{
		Direction:  ws.Pump,
		RewardPool: centsPool(25),
		BetCount:   3,
	})
	if err != nil {
		t.Fatalf("ComputeResult() error = %v", err)
	}
	if res.Amount != 16 {
		t.Errorf("Amount = %d, want 16", res.Amount)
	}
}

func TestComputeResult_WinMonotonicInStake(t *testing.T) {
	result := ws.GameResult{
		Direction:  ws.Pump,
		RewardPool: centsPool(997),
		BetCount:   500,
	}

	var prev uint64
	for stake := uint64(1); stake <= 500; stake++ {
		res, err := game.ComputeResult(stake, 0, result)
		if err != nil {
			t.Fatalf("ComputeResult(stake=%d) error = %v", stake, err)
		}
		if res.Amount < prev {
			t.Fatalf("Amount decreased at stake %d: %d < %d", stake, res.Amount, prev)
		}
		prev = res.Amount
	}
}

func TestComputeResult_LargeStakeNoOverflow(t *testing.T) {
	// stake * pool overflows uint64; the computation must stay exact
	res, err := game.ComputeResult(3_000_000, 0, ws.GameResult{
		Direction:  ws.Pump,
		RewardPool: 10_000_000_000_000_000_000,
		BetCount:   4_000_000,
	})
	if err != nil {
		t.Fatalf("ComputeResult() error = %v", err)
	}
	if want := uint64(7_500_000_000_000); res.Amount != want {
		t.Errorf("Amount = %d, want %d", res.Amount, want)
	}
}

func TestComputeResult_InvalidSettlement(t *testing.T) {
	t.Run("zero bet count with winning stake", func(t *testing.T) {
		_, err := game.ComputeResult(3, 1, ws.GameResult{
			Direction:  ws.Pump,
			RewardPool: centsPool(40),
			BetCount:   0,
		})
		if !errors.Is(err, game.ErrInvalidSettlement) {
			t.Errorf("error = %v, want ErrInvalidSettlement", err)
		}
	})

	t.Run("bet count below own stake", func(t *testing.T) {
		_, err := game.ComputeResult(10, 0, ws.GameResult{
			Direction:  ws.Pump,
			RewardPool: centsPool(40),
			BetCount:   5,
		})
		if !errors.Is(err, game.ErrInvalidSettlement) {
			t.Errorf("error = %v, want ErrInvalidSettlement", err)
		}
	})
}

func TestCentsFromE8s(t *testing.T) {
	cases := []struct {
		name string
		e8s  int64
		want uint64
	}{
		{"zero", 0, 0},
		{"one dolr", 100_000_000, 100},
		{"truncates", 123_456_789, 123},
		{"below one cent", 999_999, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := game.CentsFromE8s(big.NewInt(tc.e8s))
			if err != nil {
				t.Fatalf("CentsFromE8s() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("CentsFromE8s(%d) = %d, want %d", tc.e8s, got, tc.want)
			}
		})
	}

	t.Run("negative amount", func(t *testing.T) {
		if _, err := game.CentsFromE8s(big.NewInt(-1)); err == nil {
			t.Error("CentsFromE8s(-1) expected error")
		}
	})
}

func TestEstimatePlayerCount(t *testing.T) {
	if got := game.EstimatePlayerCount(0); got != 10 {
		t.Errorf("EstimatePlayerCount(0) = %d, want 10", got)
	}
	if got := game.EstimatePlayerCount(1); got != 15 {
		t.Errorf("EstimatePlayerCount(1) = %d, want 15", got)
	}

	// inflation never shrinks the reported count
	for reported := uint64(0); reported < 1000; reported += 7 {
		if got := game.EstimatePlayerCount(reported); got < reported {
			t.Fatalf("EstimatePlayerCount(%d) = %d, below reported", reported, got)
		}
	}
}
