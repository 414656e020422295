package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bf"

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func ConversationKey(chatID int64) string {
	return fmt.Sprintf("%s:conv:%d", keyPrefix, chatID)
}

func TopicKey(topicID int64) string {
	return fmt.Sprintf("%s:topic:%d", keyPrefix, topicID)
}

func FloodKey(chatID int64) string {
	return fmt.Sprintf("%s:flood:%d", keyPrefix, chatID)
}
