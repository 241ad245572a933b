// Command play is a terminal client for one pump-n-dump game: it loads the
// player's wallet and round snapshot, connects the protocol channel and
// places bets from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"pumpdump/internal/game"
	"pumpdump/internal/rest"
	"pumpdump/internal/wallet"
	"pumpdump/internal/ws"
)

func main() {
	var (
		workerURL = flag.String("url", "http://localhost:8080", "Worker base URL")
		owner     = flag.String("owner", "", "Game owner identifier")
		token     = flag.String("token", "", "Token identifier")
		identity  = flag.String("identity", "", "Signed player identity")
	)
	flag.Parse()

	if *owner == "" || *token == "" || *identity == "" {
		log.Fatal("owner, token and identity are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := rest.New(*workerURL)
	if err != nil {
		log.Fatalf("Invalid worker URL: %v", err)
	}

	w, err := wallet.Load(ctx, rc, *identity)
	if err != nil {
		log.Fatalf("Couldn't load wallet: %v", err)
	}
	log.Printf("Wallet: %d cents, %d games played", w.Balance(), w.GamesCount())

	ch, err := ws.Dial(*workerURL, *owner, *token, *identity)
	if err != nil {
		log.Fatalf("Couldn't connect: %v", err)
	}

	session := game.NewSession(ch, w)

	// seed the round view in case the welcome is slow
	if bets, err := rc.Bets(ctx, *owner, *token, *identity); err == nil {
		count, _ := rc.PlayerCount(ctx, *owner, *token)
		session.Seed(game.Snapshot{Pumps: bets.Pumps, Dumps: bets.Dumps, PlayerCount: count})
	}

	session.Start()
	defer session.Stop()

	go watchResults(session)

	fmt.Println("p = pump, d = dump, n = next round, s = status, q = quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "p":
			session.PlaceBet(ws.Pump)
		case "d":
			session.PlaceBet(ws.Dump)
		case "n":
			nextCtx, nextCancel := context.WithTimeout(context.Background(), 10*time.Second)
			bets, err := rc.Bets(nextCtx, *owner, *token, *identity)
			if err != nil {
				log.Printf("Couldn't load round snapshot: %v", err)
				nextCancel()
				continue
			}
			count, _ := rc.PlayerCount(nextCtx, *owner, *token)
			nextCancel()
			session.NextRound(game.Snapshot{Pumps: bets.Pumps, Dumps: bets.Dumps, PlayerCount: count})
		case "s":
			printStatus(session, w)
		case "q":
			return
		}
	}
}

func printStatus(session *game.Session, w *wallet.Wallet) {
	round := session.Round()
	state, _ := session.State()
	fmt.Printf("round %d [%s]: %d pumps / %d dumps, ~%d players, pool %d cents, balance %d cents\n",
		round.ID, state, round.Pumps, round.Dumps, round.PlayerCount, round.Pool, w.Balance())
}

// watchResults prints each settlement once and surfaces terminal errors.
func watchResults(session *game.Session) {
	var lastState game.State = game.StatePlaying
	for {
		time.Sleep(200 * time.Millisecond)

		if err := session.Err(); err != nil {
			log.Printf("Session error: %v", err)
			return
		}

		state, result := session.State()
		if state == game.StateResultDeclared && lastState == game.StatePlaying {
			if result.Won() {
				fmt.Printf("\nround over: WON %d cents (n for next round)\n", result.Amount)
			} else {
				fmt.Printf("\nround over: lost %d cents (n for next round)\n", result.Amount)
			}
		}
		lastState = state
	}
}
