// Package rest talks to the worker's plain request/response endpoints: the
// session-start snapshots that seed the wallet and the round view before the
// websocket's welcome arrives.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// UserBets is the round snapshot for one player.
type UserBets struct {
	Pumps uint64 `json:"pumps"`
	Dumps uint64 `json:"dumps"`
}

type Client struct {
	base *url.URL
	http *http.Client
}

func New(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("rest: invalid base url: %w", err)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Balance returns the player's spendable balance in raw e8s. Conversion to
// cents is the caller's concern so the scale factor lives in one place.
func (c *Client) Balance(ctx context.Context, player string) (*big.Int, error) {
	body, err := c.get(ctx, "balance", player)
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(strings.TrimSpace(string(body)), 10)
	if !ok {
		return nil, fmt.Errorf("rest: unparseable balance %q", body)
	}
	return balance, nil
}

// GameCount returns the player's completed-round count.
func (c *Client) GameCount(ctx context.Context, player string) (uint64, error) {
	body, err := c.get(ctx, "game_count", player)
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rest: unparseable game count %q: %w", body, err)
	}
	return count, nil
}

// Bets returns the player's own tallies for the active round.
func (c *Client) Bets(ctx context.Context, owner, token, player string) (UserBets, error) {
	body, err := c.get(ctx, "bets", owner, token, player)
	if err != nil {
		return UserBets{}, err
	}
	var bets UserBets
	if err := json.Unmarshal(body, &bets); err != nil {
		return UserBets{}, fmt.Errorf("rest: unparseable bets response: %w", err)
	}
	return bets, nil
}

// PlayerCount returns the raw count of distinct players in the round.
func (c *Client) PlayerCount(ctx context.Context, owner, token string) (uint64, error) {
	body, err := c.get(ctx, "player_count", owner, token)
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rest: unparseable player count %q: %w", body, err)
	}
	return count, nil
}

func (c *Client) get(ctx context.Context, parts ...string) ([]byte, error) {
	endpoint := c.base.JoinPath(parts...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("rest: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest: %s: %w", endpoint.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rest: %s: unexpected status %s", endpoint.Path, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rest: %s: read body: %w", endpoint.Path, err)
	}
	return body, nil
}
