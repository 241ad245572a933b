package ws

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Direction is a side of the prediction game.
type Direction string

const (
	Pump Direction = "pump"
	Dump Direction = "dump"
)

func (d Direction) Valid() bool {
	return d == Pump || d == Dump
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Pump {
		return Dump
	}
	return Pump
}

// Request is the outbound envelope. The only message the client sends is a
// bet, identified by a fresh request id for correlation.
type Request struct {
	RequestID uuid.UUID `json:"request_id"`
	Msg       BetMsg    `json:"msg"`
}

type BetMsg struct {
	Type      string    `json:"type"`
	Direction Direction `json:"direction"`
	Round     uint64    `json:"round"`
}

// NewBetRequest builds a bet request with a fresh request id.
func NewBetRequest(direction Direction, round uint64) Request {
	return Request{
		RequestID: uuid.New(),
		Msg: BetMsg{
			Type:      "bet",
			Direction: direction,
			Round:     round,
		},
	}
}

// Event is the closed set of server events. The decoder rejects anything
// outside this set so a protocol change shows up as an error, not a silently
// dropped message.
type Event interface {
	eventType() string
}

// UserBets is the player's own tally as reported by the server.
type UserBets struct {
	Pumps uint64 `json:"pumps"`
	Dumps uint64 `json:"dumps"`
}

// Welcome is sent once per round per connection and carries the full
// player-scoped round snapshot.
type Welcome struct {
	Round       uint64   `json:"round"`
	Pool        uint64   `json:"pool"`
	PlayerCount uint64   `json:"player_count"`
	UserBets    UserBets `json:"user_bets"`
}

// BetAccepted acknowledges a bet for the given round.
type BetAccepted struct {
	Round uint64 `json:"round"`
}

// BetFailure reports a rejected bet; the client rolls back its optimistic
// mutation for the given direction.
type BetFailure struct {
	Direction Direction `json:"direction"`
	Reason    string    `json:"reason"`
}

// GameResult declares the winning direction and the inputs for the payout
// computation. RewardPool is denominated in e8s.
type GameResult struct {
	Direction  Direction `json:"direction"`
	RewardPool uint64    `json:"reward_pool"`
	BetCount   uint64    `json:"bet_count"`
	NewRound   uint64    `json:"new_round"`
}

// WinningPool replaces the live pool for the round, in cents.
type WinningPool struct {
	NewPool uint64 `json:"new_pool"`
	Round   uint64 `json:"round"`
}

func (Welcome) eventType() string     { return "welcome" }
func (BetAccepted) eventType() string { return "bet_accepted" }
func (BetFailure) eventType() string  { return "bet_failure" }
func (GameResult) eventType() string  { return "game_result" }
func (WinningPool) eventType() string { return "winning_pool" }

// Envelope is the inbound frame: a request id (zero for unsolicited events)
// plus one event from the closed set.
type Envelope struct {
	RequestID uuid.UUID
	Event     Event
}

type wireEnvelope struct {
	RequestID uuid.UUID       `json:"request_id"`
	Response  json.RawMessage `json:"response"`
}

type wireTag struct {
	Type string `json:"type"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var tag wireTag
	if err := json.Unmarshal(w.Response, &tag); err != nil {
		return err
	}

	var ev Event
	switch tag.Type {
	case "welcome":
		var v Welcome
		if err := json.Unmarshal(w.Response, &v); err != nil {
			return err
		}
		ev = v
	case "bet_accepted":
		var v BetAccepted
		if err := json.Unmarshal(w.Response, &v); err != nil {
			return err
		}
		ev = v
	case "bet_failure":
		var v BetFailure
		if err := json.Unmarshal(w.Response, &v); err != nil {
			return err
		}
		ev = v
	case "game_result":
		var v GameResult
		if err := json.Unmarshal(w.Response, &v); err != nil {
			return err
		}
		ev = v
	case "winning_pool":
		var v WinningPool
		if err := json.Unmarshal(w.Response, &v); err != nil {
			return err
		}
		ev = v
	default:
		return fmt.Errorf("ws: unknown event type %q", tag.Type)
	}

	e.RequestID = w.RequestID
	e.Event = ev
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Event == nil {
		return nil, fmt.Errorf("ws: envelope without event")
	}

	body, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}

	// splice the type tag into the event body
	tagged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &tagged); err != nil {
		return nil, err
	}
	tagged["type"] = json.RawMessage(fmt.Sprintf("%q", e.Event.eventType()))

	response, err := json.Marshal(tagged)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireEnvelope{RequestID: e.RequestID, Response: response})
}
