package wallet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pumpdump/internal/game"
	"pumpdump/internal/rest"
)

func TestWallet_DebitRefusedAtZero(t *testing.T) {
	w := New(0, 0)

	if w.DebitOne() {
		t.Error("DebitOne() = true with empty balance")
	}
	if got := w.Balance(); got != 0 {
		t.Errorf("Balance() = %d, want 0", got)
	}
}

func TestWallet_RollbackIdempotence(t *testing.T) {
	w := New(10, 3)

	if !w.DebitOne() {
		t.Fatal("DebitOne() = false, want true")
	}
	w.CreditRollback()

	if got := w.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
	if got := w.GamesCount(); got != 3 {
		t.Errorf("GamesCount() = %d, want 3", got)
	}
}

func TestWallet_SettleRound(t *testing.T) {
	t.Run("win credits balance", func(t *testing.T) {
		w := New(6, 0)
		w.SettleRound(game.Result{Outcome: game.OutcomeWin, Amount: 15})
		if got := w.Balance(); got != 21 {
			t.Errorf("Balance() = %d, want 21", got)
		}
		if got := w.GamesCount(); got != 1 {
			t.Errorf("GamesCount() = %d, want 1", got)
		}
	})

	t.Run("loss only counts the game", func(t *testing.T) {
		w := New(6, 0)
		w.SettleRound(game.Result{Outcome: game.OutcomeLoss, Amount: 4})
		if got := w.Balance(); got != 6 {
			t.Errorf("Balance() = %d, want 6", got)
		}
		if got := w.GamesCount(); got != 1 {
			t.Errorf("GamesCount() = %d, want 1", got)
		}
	})

	t.Run("zero win counts the game", func(t *testing.T) {
		w := New(6, 2)
		w.SettleRound(game.Result{Outcome: game.OutcomeWin, Amount: 0})
		if got := w.Balance(); got != 6 {
			t.Errorf("Balance() = %d, want 6", got)
		}
		if got := w.GamesCount(); got != 3 {
			t.Errorf("GamesCount() = %d, want 3", got)
		}
	})
}

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/balance/player-1":
			// 12.34 dolr in e8s
			fmt.Fprint(rw, "1234000000")
		case "/game_count/player-1":
			fmt.Fprint(rw, "7")
		default:
			http.NotFound(rw, r)
		}
	}))
	defer srv.Close()

	c, err := rest.New(srv.URL)
	if err != nil {
		t.Fatalf("rest.New() error = %v", err)
	}

	w, err := Load(context.Background(), c, "player-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := w.Balance(); got != 1234 {
		t.Errorf("Balance() = %d cents, want 1234", got)
	}
	if got := w.GamesCount(); got != 7 {
		t.Errorf("GamesCount() = %d, want 7", got)
	}
}

func TestLoad_ErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := rest.New(srv.URL)
	if err != nil {
		t.Fatalf("rest.New() error = %v", err)
	}

	if _, err := Load(context.Background(), c, "player-1"); err == nil {
		t.Error("Load() expected error")
	}
}
