package game

import (
	"errors"
	"log"
	"sync"

	"pumpdump/internal/ws"
)

// ErrChannelClosed is the terminal session error when the protocol channel
// breaks mid-session. No automatic reconnect: the owner decides whether to
// build a fresh session.
var ErrChannelClosed = errors.New("game: protocol channel closed")

const cmdBuffer = 64

type cmdKind int

const (
	cmdBet cmdKind = iota
	cmdNextRound
)

type command struct {
	kind      cmdKind
	direction ws.Direction
	snap      Snapshot
}

// Session is the game session state machine for one (owner, token) pair.
//
// Two concurrent sources mutate the same round and wallet state: user bet
// commands and the channel's inbound events. Both are funneled into a single
// loop goroutine, so an optimistic debit and its rollback can never race.
// Readers take consistent copies through the mutex-guarded accessors.
type Session struct {
	ch     Channel
	wallet WalletCache

	cmds     chan command
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}

	mu        sync.RWMutex
	state     State
	result    Result
	round     Round
	welcomed  bool // a welcome established the round id; betting requires this
	nextRound uint64
	err       error
}

// NewSession wires a session over an established channel and a loaded
// wallet. Call Start to begin consuming events.
func NewSession(ch Channel, wallet WalletCache) *Session {
	return &Session{
		ch:       ch,
		wallet:   wallet,
		cmds:     make(chan command, cmdBuffer),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		state:    StatePlaying,
	}
}

func (s *Session) Start() {
	go s.loop()
}

// Stop ends the session: the inbound stream is abandoned and the channel
// resource released. In-flight optimistic mutations are discarded with the
// session itself. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.ch.Close()
	})
	<-s.doneChan
}

// PlaceBet dispatches one bet in the given direction. It returns immediately;
// rejection arrives asynchronously as a bet failure event and is resolved by
// rollback. With no balance, no established round, or a declared result the
// call is a no-op.
func (s *Session) PlaceBet(direction ws.Direction) {
	if !direction.Valid() {
		return
	}
	select {
	case s.cmds <- command{kind: cmdBet, direction: direction}:
	default:
		log.Println("[SESSION] Command queue full, dropping bet")
	}
}

// NextRound leaves ResultDeclared and re-seeds the round from a freshly
// fetched snapshot, using the round id remembered from the result event.
func (s *Session) NextRound(snap Snapshot) {
	select {
	case s.cmds <- command{kind: cmdNextRound, snap: snap}:
	default:
		log.Println("[SESSION] Command queue full, dropping round rollover")
	}
}

// Seed populates round tallies from the REST snapshot for display before the
// welcome arrives. It does not establish a round id, so betting stays
// disabled until the server's welcome.
func (s *Session) Seed(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.welcomed {
		return
	}
	s.round.Pumps = snap.Pumps
	s.round.Dumps = snap.Dumps
	s.round.PlayerCount = EstimatePlayerCount(snap.PlayerCount)
}

// State reports the observable state and, once declared, the settlement.
func (s *Session) State() (State, Result) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.result
}

// Round returns a consistent copy of the player-scoped round view.
func (s *Session) Round() Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Err reports the terminal or invariant-violation error, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return s.err
	}
	return nil
}

func (s *Session) loop() {
	defer close(s.doneChan)
	for {
		select {
		case <-s.stopChan:
			return
		case env, ok := <-s.ch.Events():
			if !ok {
				s.mu.Lock()
				if s.err == nil {
					s.err = ErrChannelClosed
				}
				s.mu.Unlock()
				return
			}
			s.handleEvent(env.Event)
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		}
	}
}

// handleEvent applies one inbound event. Events are processed strictly in
// the order received; reordering a result ahead of its welcome would corrupt
// the settlement.
func (s *Session) handleEvent(event ws.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := event.(type) {
	case ws.Welcome:
		s.round = Round{
			ID:          ev.Round,
			Pumps:       ev.UserBets.Pumps,
			Dumps:       ev.UserBets.Dumps,
			PlayerCount: EstimatePlayerCount(ev.PlayerCount),
			Pool:        ev.Pool,
			PoolKnown:   true,
		}
		s.welcomed = true
		s.state = StatePlaying
		s.result = Result{}

	case ws.BetAccepted:
		// optimistic mutation already applied at dispatch time
		log.Printf("[SESSION] Bet accepted for round %d (current round %d)", ev.Round, s.round.ID)

	case ws.BetFailure:
		log.Printf("[SESSION] Bet rejected (%s): %s", ev.Direction, ev.Reason)
		s.rollback(ev.Direction)

	case ws.GameResult:
		s.settle(ev)

	case ws.WinningPool:
		s.round.Pool = ev.NewPool
		s.round.PoolKnown = true

	default:
		// closed union; reaching this means the decoder grew an event the
		// state machine doesn't know
		log.Printf("[SESSION] Unhandled event %T", event)
	}
}

// rollback undoes exactly one optimistic bet in the given direction.
func (s *Session) rollback(direction ws.Direction) {
	switch direction {
	case ws.Pump:
		if s.round.Pumps == 0 {
			log.Println("[SESSION] Rollback without a matching pump bet, ignoring")
			return
		}
		s.round.Pumps--
	case ws.Dump:
		if s.round.Dumps == 0 {
			log.Println("[SESSION] Rollback without a matching dump bet, ignoring")
			return
		}
		s.round.Dumps--
	default:
		return
	}
	s.wallet.CreditRollback()
}

func (s *Session) settle(ev ws.GameResult) {
	if !s.welcomed {
		// settling against a round that was never loaded would fabricate a
		// zero-stake win
		log.Printf("[SESSION] Dropping result for unloaded round (new round %d)", ev.NewRound)
		return
	}
	if s.state != StatePlaying {
		log.Printf("[SESSION] Dropping duplicate result for round %d", s.round.ID)
		return
	}

	result, err := ComputeResult(s.round.Pumps, s.round.Dumps, ev)
	if err != nil {
		log.Printf("[SESSION] Refusing settlement for round %d: %v", s.round.ID, err)
		s.err = err
		return
	}

	s.wallet.SettleRound(result)
	s.result = result
	s.state = StateResultDeclared
	s.nextRound = ev.NewRound
	log.Printf("[SESSION] Round %d settled: %s %d cents (next round %d)",
		s.round.ID, result.Outcome, result.Amount, ev.NewRound)
}

func (s *Session) handleCommand(cmd command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.kind {
	case cmdBet:
		s.placeBet(cmd.direction)
	case cmdNextRound:
		s.rollRound(cmd.snap)
	}
}

// placeBet applies the optimistic mutation and sends the request, in that
// order, atomically with respect to inbound events.
func (s *Session) placeBet(direction ws.Direction) {
	if s.state != StatePlaying || !s.welcomed {
		return
	}
	if !s.wallet.DebitOne() {
		return
	}

	switch direction {
	case ws.Pump:
		s.round.Pumps++
	case ws.Dump:
		s.round.Dumps++
	}

	if err := s.ch.Send(ws.NewBetRequest(direction, s.round.ID)); err != nil {
		// the broken channel will surface through the event stream; the
		// optimistic mutation stands until then, same as an unacknowledged bet
		log.Printf("[SESSION] Bet send failed: %v", err)
	}
}

func (s *Session) rollRound(snap Snapshot) {
	if s.state != StateResultDeclared {
		return
	}
	s.round = Round{
		ID:          s.nextRound,
		Pumps:       snap.Pumps,
		Dumps:       snap.Dumps,
		PlayerCount: EstimatePlayerCount(snap.PlayerCount),
	}
	s.state = StatePlaying
	s.result = Result{}
}
