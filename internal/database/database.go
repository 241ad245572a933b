package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// SettledRound is one finished round of a (owner, token) game, persisted
// for history and fairness audits.
type SettledRound struct {
	ID               int64     `json:"id"`
	Owner            string    `json:"owner"`
	Token            string    `json:"token"`
	Round            uint64    `json:"round"`
	WinningDirection string    `json:"winning_direction"`
	PoolCents        uint64    `json:"pool_cents"`
	BetCount         uint64    `json:"bet_count"`
	ServerSeed       string    `json:"server_seed"`
	Commitment       string    `json:"commitment"`
	SettledAt        time.Time `json:"settled_at"`
}

type Service interface {
	Health() map[string]string
	SaveRound(ctx context.Context, round SettledRound) error
	RecentRounds(ctx context.Context, owner, token string, limit int) ([]SettledRound, error)
	Close() error
}

type service struct {
	db *sql.DB
}

var (
	database = getEnv("PND_DB_DATABASE", "pumpdump")
	password = getEnv("PND_DB_PASSWORD", "postgres")
	username = getEnv("PND_DB_USERNAME", "postgres")
	port     = getEnv("PND_DB_PORT", "5432")
	host     = getEnv("PND_DB_HOST", "localhost")
	schema   = getEnv("PND_DB_SCHEMA", "public")
)

func New() Service {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Printf("[DB] Open failed: %v", err)
		return nil
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Printf("[DB] Ping failed: %v", err)
		return nil
	}

	log.Println("[DB] Postgres connected")
	return &service{db: db}
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)

	return stats
}

func (s *service) SaveRound(ctx context.Context, round SettledRound) error {
	const q = `
		INSERT INTO rounds (owner, token, round, winning_direction, pool_cents, bet_count, server_seed, commitment, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, q,
		round.Owner, round.Token, int64(round.Round), round.WinningDirection,
		int64(round.PoolCents), int64(round.BetCount), round.ServerSeed,
		round.Commitment, round.SettledAt)
	if err != nil {
		return fmt.Errorf("database: save round: %w", err)
	}
	return nil
}

func (s *service) RecentRounds(ctx context.Context, owner, token string, limit int) ([]SettledRound, error) {
	const q = `
		SELECT id, owner, token, round, winning_direction, pool_cents, bet_count, server_seed, commitment, settled_at
		FROM rounds
		WHERE owner = $1 AND token = $2
		ORDER BY round DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, q, owner, token, limit)
	if err != nil {
		return nil, fmt.Errorf("database: recent rounds: %w", err)
	}
	defer rows.Close()

	var out []SettledRound
	for rows.Next() {
		var r SettledRound
		var round, pool, betCount int64
		if err := rows.Scan(&r.ID, &r.Owner, &r.Token, &round, &r.WinningDirection,
			&pool, &betCount, &r.ServerSeed, &r.Commitment, &r.SettledAt); err != nil {
			return nil, fmt.Errorf("database: scan round: %w", err)
		}
		r.Round = uint64(round)
		r.PoolCents = uint64(pool)
		r.BetCount = uint64(betCount)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *service) Close() error {
	log.Println("[DB] Disconnecting from Postgres")
	return s.db.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
