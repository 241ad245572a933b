package server

import (
	"context"
	"log"
	"math/big"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pumpdump/internal/database"
	"pumpdump/internal/game"
	"pumpdump/internal/ws"
)

const (
	redisKeyBalance   = "pnd:balance:" // player -> spendable cents
	redisKeyGameCount = "pnd:games:"   // player -> settled rounds played

	betQueueSize = 1000
)

var roundDuration = time.Duration(getEnvAsInt("PND_ROUND_SECONDS", 30)) * time.Second

// BetRequest is one player's bet as read off their connection.
type BetRequest struct {
	Client    *Client
	RequestID uuid.UUID
	Direction ws.Direction
	Round     uint64
}

type tally struct {
	pumps uint64
	dumps uint64
}

// Engine runs the rounds of one (owner, token) game: it collects bets,
// holds the pool, draws the winning direction from a committed seed and
// broadcasts the result. Balances live in Redis so they survive the engine;
// settled rounds go to Postgres for history.
type Engine struct {
	owner string
	token string

	hub   *Hub
	rdb   *redis.Client
	store database.Service
	ctx   context.Context

	betChan  chan BetRequest
	stopChan chan struct{}

	mu         sync.RWMutex
	round      uint64
	poolCents  uint64
	tallies    map[string]*tally
	totals     tally
	serverSeed string
	clientSeed string
	commitment string
}

func NewEngine(owner, token string, hub *Hub, rdb *redis.Client, store database.Service) *Engine {
	e := &Engine{
		owner:    owner,
		token:    token,
		hub:      hub,
		rdb:      rdb,
		store:    store,
		ctx:      context.Background(),
		betChan:  make(chan BetRequest, betQueueSize),
		stopChan: make(chan struct{}),
		round:    1,
		tallies:  make(map[string]*tally),
	}
	e.reseed()
	return e
}

func (e *Engine) Start() {
	go e.hub.Run()
	go e.loop()
}

func (e *Engine) Stop() {
	close(e.stopChan)
}

func (e *Engine) Hub() *Hub {
	return e.hub
}

// PlaceBet enqueues a bet for the round loop. Never blocks the reader; a
// full queue rejects the bet outright.
func (e *Engine) PlaceBet(req BetRequest) {
	select {
	case e.betChan <- req:
	default:
		req.Client.Send(ws.Envelope{
			RequestID: req.RequestID,
			Event:     ws.BetFailure{Direction: req.Direction, Reason: "bet queue full"},
		})
	}
}

// PlayerCount reports the distinct players with at least one bet this round.
func (e *Engine) PlayerCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.tallies))
}

// UserBets reports a player's own tallies for the active round.
func (e *Engine) UserBets(player string) ws.UserBets {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.tallies[player]; ok {
		return ws.UserBets{Pumps: t.pumps, Dumps: t.dumps}
	}
	return ws.UserBets{}
}

// Welcome sends the per-player round snapshot over one connection.
func (e *Engine) Welcome(c *Client) {
	e.mu.RLock()
	env := ws.Envelope{Event: ws.Welcome{
		Round:       e.round,
		Pool:        e.poolCents,
		PlayerCount: uint64(len(e.tallies)),
		UserBets:    e.userBetsLocked(c.Player()),
	}}
	e.mu.RUnlock()
	c.Send(env)
}

func (e *Engine) userBetsLocked(player string) ws.UserBets {
	if t, ok := e.tallies[player]; ok {
		return ws.UserBets{Pumps: t.pumps, Dumps: t.dumps}
	}
	return ws.UserBets{}
}

func (e *Engine) loop() {
	log.Printf("[ENGINE] %s/%s started (round %ds, commitment %s...)",
		e.owner, e.token, int(roundDuration.Seconds()), e.commitment[:16])

	timer := time.NewTimer(roundDuration)
	defer timer.Stop()

	for {
		select {
		case <-e.stopChan:
			log.Printf("[ENGINE] %s/%s stopped", e.owner, e.token)
			return
		case bet := <-e.betChan:
			e.processBet(bet)
		case <-timer.C:
			e.settleRound()
			timer.Reset(roundDuration)
		}
	}
}

func (e *Engine) processBet(req BetRequest) {
	player := req.Client.Player()

	e.mu.RLock()
	current := e.round
	e.mu.RUnlock()

	if req.Round != current {
		req.Client.Send(ws.Envelope{
			RequestID: req.RequestID,
			Event:     ws.BetFailure{Direction: req.Direction, Reason: "round closed"},
		})
		return
	}

	// Debit one cent atomically; negative means the player was broke.
	balanceKey := redisKeyBalance + player
	newBalance, err := e.rdb.DecrBy(e.ctx, balanceKey, 1).Result()
	if err != nil || newBalance < 0 {
		if err == nil {
			e.rdb.IncrBy(e.ctx, balanceKey, 1) // Rollback
		}
		req.Client.Send(ws.Envelope{
			RequestID: req.RequestID,
			Event:     ws.BetFailure{Direction: req.Direction, Reason: "insufficient balance"},
		})
		return
	}

	e.mu.Lock()
	t, ok := e.tallies[player]
	if !ok {
		t = &tally{}
		e.tallies[player] = t
	}
	switch req.Direction {
	case ws.Pump:
		t.pumps++
		e.totals.pumps++
	case ws.Dump:
		t.dumps++
		e.totals.dumps++
	}
	e.poolCents++
	pool := e.poolCents
	round := e.round
	e.mu.Unlock()

	req.Client.Send(ws.Envelope{
		RequestID: req.RequestID,
		Event:     ws.BetAccepted{Round: round},
	})
	e.hub.Broadcast(ws.Envelope{Event: ws.WinningPool{NewPool: pool, Round: round}})
}

func (e *Engine) settleRound() {
	e.mu.Lock()
	round := e.round
	poolCents := e.poolCents
	tallies := e.tallies
	winner := DrawDirection(e.serverSeed, e.clientSeed, round)
	betCount := e.totals.pumps
	if winner == ws.Dump {
		betCount = e.totals.dumps
	}
	serverSeed := e.serverSeed
	commitment := e.commitment

	// roll over before releasing the lock so late bets land in the new round
	e.round++
	e.poolCents = 0
	e.tallies = make(map[string]*tally)
	e.totals = tally{}
	e.reseed()
	e.mu.Unlock()

	log.Printf("[ENGINE] %s/%s round %d settled: %s wins, pool %d cents, %d winning bets",
		e.owner, e.token, round, winner, poolCents, betCount)

	poolE8s := new(big.Int).Mul(
		new(big.Int).SetUint64(poolCents),
		big.NewInt(game.E8sPerDolr/game.CentsPerDolr),
	)

	e.creditWinners(tallies, winner, poolE8s, betCount)
	e.persistRound(round, winner, poolCents, betCount, serverSeed, commitment)

	result := ws.Envelope{Event: ws.GameResult{
		Direction:  winner,
		RewardPool: poolE8s.Uint64(),
		BetCount:   betCount,
		NewRound:   round + 1,
	}}

	// each client must see its result before the next round's snapshot, so
	// both go out back to back on the same connection
	for _, client := range e.hub.Clients() {
		client.Send(result)
		e.Welcome(client)
	}
}

// creditWinners applies the same proportional split the client computes, so
// the authoritative balance and the client's optimistic view agree.
func (e *Engine) creditWinners(tallies map[string]*tally, winner ws.Direction, poolE8s *big.Int, betCount uint64) {
	for player, t := range tallies {
		e.rdb.Incr(e.ctx, redisKeyGameCount+player)

		if t.pumps == t.dumps {
			continue
		}
		direction, stake := ws.Pump, t.pumps
		if t.dumps > t.pumps {
			direction, stake = ws.Dump, t.dumps
		}
		if direction != winner || betCount == 0 {
			continue
		}

		share := new(big.Int).Mul(new(big.Int).SetUint64(stake), poolE8s)
		share.Quo(share, new(big.Int).SetUint64(betCount))
		cents, err := game.CentsFromE8s(share)
		if err != nil {
			log.Printf("[ENGINE] Skipping payout for %s: %v", player, err)
			continue
		}
		if cents > 0 {
			e.rdb.IncrBy(e.ctx, redisKeyBalance+player, int64(cents))
		}
	}
}

func (e *Engine) persistRound(round uint64, winner ws.Direction, poolCents, betCount uint64, serverSeed, commitment string) {
	if e.store == nil {
		return
	}
	err := e.store.SaveRound(e.ctx, database.SettledRound{
		Owner:            e.owner,
		Token:            e.token,
		Round:            round,
		WinningDirection: string(winner),
		PoolCents:        poolCents,
		BetCount:         betCount,
		ServerSeed:       serverSeed,
		Commitment:       commitment,
		SettledAt:        time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[ENGINE] Failed to persist round %d: %v", round, err)
	}
}

// reseed draws fresh seeds and a commitment for the next round. Caller holds
// the lock (or has exclusive access during construction).
func (e *Engine) reseed() {
	e.serverSeed = GenerateSeed()
	e.clientSeed = GenerateSeed()
	e.commitment = HashCommitment(e.serverSeed)
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
