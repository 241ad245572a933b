package server

import (
	"encoding/json"
	"log"
	"math/big"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"pumpdump/internal/game"
	"pumpdump/internal/ws"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	// snapshot endpoints consumed by the client at session start
	s.App.Get("/balance/:player", s.getBalanceHandler)
	s.App.Get("/game_count/:player", s.getGameCountHandler)
	s.App.Get("/bets/:owner/:token/:player", s.getBetsHandler)
	s.App.Get("/player_count/:owner/:token", s.getPlayerCountHandler)

	// dev-only seeding of a player's balance
	s.App.Post("/balance/:player", s.setBalanceHandler)

	s.App.Get("/rounds/:owner/:token", s.getRoundsHandler)

	s.App.Get("/ws/:owner/:token", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"cache": s.cache.Health(),
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	return c.JSON(health)
}

// getBalanceHandler returns the balance as a plain e8s-denominated integer,
// the format the hosted worker uses.
func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	player := c.Params("player")

	cents, err := s.cache.GetClient().Get(c.Context(), redisKeyBalance+player).Int64()
	if err != nil {
		cents = 0
	}
	if cents < 0 {
		cents = 0
	}

	e8s := new(big.Int).Mul(big.NewInt(cents), big.NewInt(game.E8sPerDolr/game.CentsPerDolr))
	return c.SendString(e8s.String())
}

func (s *FiberServer) getGameCountHandler(c *fiber.Ctx) error {
	player := c.Params("player")

	count, err := s.cache.GetClient().Get(c.Context(), redisKeyGameCount+player).Uint64()
	if err != nil {
		count = 0
	}
	return c.SendString(strconv.FormatUint(count, 10))
}

func (s *FiberServer) getBetsHandler(c *fiber.Ctx) error {
	e := s.engine(c.Params("owner"), c.Params("token"))
	return c.JSON(e.UserBets(c.Params("player")))
}

func (s *FiberServer) getPlayerCountHandler(c *fiber.Ctx) error {
	e := s.engine(c.Params("owner"), c.Params("token"))
	return c.SendString(strconv.FormatUint(e.PlayerCount(), 10))
}

func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	player := c.Params("player")

	var body struct {
		BalanceCents int64 `json:"balance_cents"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if body.BalanceCents < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Balance cannot be negative"})
	}

	err := s.cache.GetClient().Set(c.Context(), redisKeyBalance+player, body.BalanceCents, 0).Err()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to set balance"})
	}

	return c.JSON(fiber.Map{"player": player, "balance_cents": body.BalanceCents})
}

func (s *FiberServer) getRoundsHandler(c *fiber.Ctx) error {
	if s.db == nil {
		return c.Status(404).JSON(fiber.Map{"error": "Round history not available"})
	}

	limit := c.QueryInt("limit", 20)
	rounds, err := s.db.RecentRounds(c.Context(), c.Params("owner"), c.Params("token"), limit)
	if err != nil {
		log.Printf("[SERVER] Round history query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load rounds"})
	}
	return c.JSON(rounds)
}

// gameWebSocketHandler runs one player's connection: welcome on join, then a
// read loop that feeds bets to the engine.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	owner := conn.Params("owner")
	token := conn.Params("token")

	// the signed identity doubles as the player id; verifying the signature
	// is the hosted worker's concern, not this dev server's
	player := conn.Query("identity", "anonymous")

	e := s.engine(owner, token)
	client := e.Hub().RegisterClient(conn, player)
	defer e.Hub().UnregisterClient(client)

	e.Welcome(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for player %s: %v", player, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req ws.Request
		if err := json.Unmarshal(message, &req); err != nil {
			log.Printf("[WS] Bad request from player %s: %v", player, err)
			continue
		}
		if req.Msg.Type != "bet" || !req.Msg.Direction.Valid() {
			continue
		}

		e.PlaceBet(BetRequest{
			Client:    client,
			RequestID: req.RequestID,
			Direction: req.Msg.Direction,
			Round:     req.Msg.Round,
		})
	}
}
