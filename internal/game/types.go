package game

import (
	"pumpdump/internal/ws"
)

// Round is the player-scoped view of the active round. Pumps and Dumps count
// this player's own bets; PlayerCount and Pool are server-reported values
// that are only ever replaced wholesale.
type Round struct {
	ID          uint64 `json:"round_id"`
	Pumps       uint64 `json:"pumps"`
	Dumps       uint64 `json:"dumps"`
	PlayerCount uint64 `json:"player_count"`
	Pool        uint64 `json:"pool"`
	PoolKnown   bool   `json:"pool_known"`
}

// TotalBets is everything the player has staked this round, on both sides.
func (r Round) TotalBets() uint64 {
	return r.Pumps + r.Dumps
}

// Snapshot seeds a round from the REST collaborator when the channel's
// welcome has not yet arrived.
type Snapshot struct {
	Pumps       uint64
	Dumps       uint64
	PlayerCount uint64
}

// Outcome tags a settlement result.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Result is the settled outcome of a round. Amount is in cents: the
// proportional pool share for a win (legitimately zero on a tie), the
// player's total forfeited bets for a loss.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Amount  uint64  `json:"amount"`
}

func (r Result) Won() bool { return r.Outcome == OutcomeWin }

// State is the externally observable session state.
type State string

const (
	StatePlaying        State = "playing"
	StateResultDeclared State = "result_declared"
)

// WalletCache is the single consistent copy of the player's spendable
// balance, shared between the bet dispatcher and the state machine. All
// writes funnel through these four mutators.
type WalletCache interface {
	Balance() uint64
	DebitOne() bool
	CreditRollback()
	SettleRound(res Result)
}

// Channel is the protocol channel consumed by the session: an
// order-preserving inbound event stream plus fire-and-forget sends.
type Channel interface {
	Events() <-chan ws.Envelope
	Send(req ws.Request) error
	Close() error
}
