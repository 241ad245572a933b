package server

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"pumpdump/internal/cache"
	"pumpdump/internal/database"
)

// FiberServer is the development game server: it emulates the hosted
// pump-n-dump worker so the client engine can be exercised end to end.
type FiberServer struct {
	*fiber.App

	db    database.Service
	cache cache.Service

	enginesMu sync.Mutex
	engines   map[string]*Engine
}

func New() *FiberServer {
	// Postgres is optional: without it round history is simply not kept.
	db := database.New()
	if db == nil {
		log.Println("[SERVER] Running without round history")
	}

	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for player balances")
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "pumpdump",
			AppName:       "pumpdump",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:      db,
		cache:   redisService,
		engines: make(map[string]*Engine),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
	}))

	return server
}

// engine returns the running engine for a (owner, token) game, creating it
// on first use.
func (s *FiberServer) engine(owner, token string) *Engine {
	key := owner + "/" + token

	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()

	if e, ok := s.engines[key]; ok {
		return e
	}

	e := NewEngine(owner, token, NewHub(), s.cache.GetClient(), s.db)
	e.Start()
	s.engines[key] = e
	log.Printf("[SERVER] Started game %s", key)
	return e
}

// Shutdown stops the engines and closes the backing connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	s.enginesMu.Lock()
	for _, e := range s.engines {
		e.Stop()
	}
	s.enginesMu.Unlock()

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
