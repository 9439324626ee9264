package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(variantID int64) string {
	return fmt.Sprintf("stock:%d", variantID)
}

// Reservation outcomes of the reserve script.
const (
	ReserveUnknown      = -1 // variant not mirrored, caller decides
	ReserveInsufficient = 0
	ReserveOK           = 1
)

// ReserveStock atomically reserves stock for a variant via Lua script.
// Returns one of ReserveOK, ReserveInsufficient or ReserveUnknown.
func (c *Client) ReserveStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(variantID)}, quantity).Result()
	if err != nil {
		return ReserveUnknown, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return ReserveUnknown, fmt.Errorf("unexpected script result type")
	}

	return int(status), nil
}

// ReleaseStock atomically returns reserved stock to available
func (c *Client) ReleaseStock(ctx context.Context, variantID int64, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(variantID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}

	return nil
}

// CommitStock atomically debits reserved stock permanently
func (c *Client) CommitStock(ctx context.Context, variantID int64, quantity int) error {
	_, err := c.commitScript.Run(ctx, c.rdb, []string{stockKey(variantID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}

	return nil
}

// InitStock sets the stock counts for a variant
func (c *Client) InitStock(ctx context.Context, variantID int64, available, reserved int) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, stockKey(variantID), "available", available)
	pipe.HSet(ctx, stockKey(variantID), "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock retrieves current stock counts for a variant
func (c *Client) GetStock(ctx context.Context, variantID int64) (available, reserved int, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(variantID)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not found for variant %d", variantID)
	}

	var availableInt, reservedInt int
	fmt.Sscanf(result["available"], "%d", &availableInt)
	fmt.Sscanf(result["reserved"], "%d", &reservedInt)

	return availableInt, reservedInt, nil
}
