// Package wallet holds the player's spendable balance and completed-game
// count for one authenticated session. Mutations are synchronous and
// in-memory; the authoritative value comes from the balance service at load
// time and every local change mirrors exactly one protocol event.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"pumpdump/internal/game"
	"pumpdump/internal/rest"
)

type Wallet struct {
	mu         sync.RWMutex
	balance    uint64 // cents
	gamesCount uint64
}

func New(balance, gamesCount uint64) *Wallet {
	return &Wallet{balance: balance, gamesCount: gamesCount}
}

// Load fetches the player's balance and completed-game count from the
// worker. Errors surface to the caller; no retry is built in.
func Load(ctx context.Context, c *rest.Client, player string) (*Wallet, error) {
	balanceE8s, err := c.Balance(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("wallet: load balance: %w", err)
	}
	balance, err := game.CentsFromE8s(balanceE8s)
	if err != nil {
		return nil, fmt.Errorf("wallet: load balance: %w", err)
	}

	gamesCount, err := c.GameCount(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("wallet: load game count: %w", err)
	}

	return New(balance, gamesCount), nil
}

func (w *Wallet) Balance() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance
}

func (w *Wallet) GamesCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gamesCount
}

// DebitOne takes one cent for a dispatched bet. Returns false with no
// mutation when the balance is empty; the balance can never go negative.
func (w *Wallet) DebitOne() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balance == 0 {
		return false
	}
	w.balance--
	return true
}

// CreditRollback undoes one DebitOne after a rejected bet.
func (w *Wallet) CreditRollback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance++
}

// SettleRound records a completed round: the game counter always advances,
// the balance grows only by a winning amount.
func (w *Wallet) SettleRound(res game.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gamesCount++
	if res.Won() {
		w.balance += res.Amount
	}
}
