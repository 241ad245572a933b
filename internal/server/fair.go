package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"pumpdump/internal/ws"
)

// DrawDirection maps HMAC-SHA256(serverSeed, clientSeed:round) to a winning
// direction. The commitment published before the round binds the server to
// the seed, so the draw is verifiable after the seed is revealed.
func DrawDirection(serverSeed, clientSeed string, round uint64) ws.Direction {
	data := fmt.Sprintf("%s:%d", clientSeed, round)
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(data))
	sum := h.Sum(nil)

	if binary.BigEndian.Uint64(sum[:8])&1 == 0 {
		return ws.Pump
	}
	return ws.Dump
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.New()
	h.Write([]byte(seed))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDraw lets players check a settled round against the revealed seed.
func VerifyDraw(serverSeed, clientSeed string, round uint64, claimed ws.Direction) bool {
	return DrawDirection(serverSeed, clientSeed, round) == claimed
}
