package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// wakeQueue carries job ids from the API to the worker so a freshly
// enqueued job is picked up without waiting a full poll interval. It is
// a nudge, not the source of truth: the jobs table is.
const wakeQueue = "stagepass:jobs:wake"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

// NudgeJob pushes a job id onto the wake queue. Losing a nudge is fine,
// the worker's poll ticker will find the row anyway.

func (c *Client) NudgeJob(ctx context.Context, jobID string) error {
	return c.redisdb.LPush(ctx, wakeQueue, jobID).Err()
}

// WaitForNudge blocks up to timeout for a nudge. Returns "" (no error)
// on timeout so callers can fall through to their poll loop.

func (c *Client) WaitForNudge(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := c.redisdb.BRPop(ctx, timeout, wakeQueue).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return "", nil
	}

	return res[1], nil
}

// this closes the client

func (c *Client) Close() error {
	return c.redisdb.Close()
}

//  this exposes the underlying client for anything not wrapped here

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
