package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"pumpdump/internal/server"
)

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port := getEnv("PORT", "8080")

	go func() {
		if err := srv.Listen(":" + port); err != nil {
			log.Fatalf("[SERVER] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("[SERVER] Fiber shutdown failed: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Shutdown failed: %v", err)
	}
}
