package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// StateKey is the key holding an in-flight OAuth state for a platform.
func StateKey(platform, state string) string {
	return fmt.Sprintf("oauth_state:%s:%s", platform, state)
}

// LinkEventChannel is the pub/sub channel carrying link events for a user.
func LinkEventChannel(userID string) string {
	return fmt.Sprintf("link_events:%s", userID)
}
