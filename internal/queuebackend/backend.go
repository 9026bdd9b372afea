// Package queuebackend implements the host "queue backend" collaborator
// (spec.md §6): send/receive/delete of raw messages, independent of the
// queue's handler semantics. Standard queues are Redis lists; FIFO queues
// are per-group Redis streams so in-group order survives redelivery,
// mirroring the teacher's use of go-redis for durable, ordered state.
package queuebackend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"eventgate/internal/queuedispatch"
)

// Backend is the raw send/receive/delete contract a queuedispatch.Dispatcher
// is fed from.
type Backend interface {
	Send(ctx context.Context, queueName string, groupID string, body []byte) (messageID string, err error)
	Receive(ctx context.Context, queueName string, fifo bool, max int) ([]queuedispatch.IncomingMessage, error)
	Delete(ctx context.Context, queueName string, fifo bool, messageID string) error
}

// RedisBackend is the production Backend.
type RedisBackend struct {
	Client *redis.Client
}

// NewRedisBackend wraps an already-connected client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{Client: client}
}

func listKey(queueName string) string   { return "eventgate:queue:" + queueName }
func streamKey(queueName string) string { return "eventgate:fifo:" + queueName }

// Send pushes body onto a standard queue's list, or appends it to a FIFO
// queue's per-group stream (groupID required for FIFO).
func (b *RedisBackend) Send(ctx context.Context, queueName, groupID string, body []byte) (string, error) {
	id := uuid.NewString()
	if groupID != "" {
		// The stream entry ID IS the message ID for FIFO queues: XDel (in
		// Delete) only accepts that ID, not an application-chosen one.
		res, err := b.Client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(queueName) + ":" + groupID,
			Values: map[string]any{"body": body},
		}).Result()
		if err != nil {
			return "", fmt.Errorf("queuebackend: XAdd %s: %w", queueName, err)
		}
		return res, nil
	}
	payload := id + "\x00" + string(body)
	if err := b.Client.RPush(ctx, listKey(queueName), payload).Err(); err != nil {
		return "", fmt.Errorf("queuebackend: RPush %s: %w", queueName, err)
	}
	return id, nil
}

// Receive pulls up to max messages. Standard queues pop from the list;
// FIFO queues read the oldest unconsumed entries across all group streams
// via a consumer-group-free XRange (dispatch ordering within a group is
// then enforced by queuedispatch.DispatchFIFO, not by Redis).
func (b *RedisBackend) Receive(ctx context.Context, queueName string, fifo bool, max int) ([]queuedispatch.IncomingMessage, error) {
	if fifo {
		return b.receiveFIFO(ctx, queueName, max)
	}
	return b.receiveStandard(ctx, queueName, max)
}

func (b *RedisBackend) receiveStandard(ctx context.Context, queueName string, max int) ([]queuedispatch.IncomingMessage, error) {
	var out []queuedispatch.IncomingMessage
	for i := 0; i < max; i++ {
		raw, err := b.Client.LPop(ctx, listKey(queueName)).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("queuebackend: LPop %s: %w", queueName, err)
		}
		id, body := splitPayload(raw)
		out = append(out, queuedispatch.IncomingMessage{
			MessageID: id,
			Body:      []byte(body),
			SentAt:    time.Now(),
		})
	}
	return out, nil
}

func (b *RedisBackend) receiveFIFO(ctx context.Context, queueName string, max int) ([]queuedispatch.IncomingMessage, error) {
	pattern := streamKey(queueName) + ":*"
	keys, err := b.Client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("queuebackend: listing FIFO groups for %s: %w", queueName, err)
	}

	var out []queuedispatch.IncomingMessage
	for _, key := range keys {
		if len(out) >= max {
			break
		}
		entries, err := b.Client.XRange(ctx, key, "-", "+").Result()
		if err != nil {
			return nil, fmt.Errorf("queuebackend: XRange %s: %w", key, err)
		}
		groupID := groupFromStreamKey(key)
		for _, entry := range entries {
			if len(out) >= max {
				break
			}
			body, _ := entry.Values["body"].(string)
			out = append(out, queuedispatch.IncomingMessage{
				MessageID:   entry.ID,
				GroupID:     groupID,
				Body:        []byte(body),
				SentAt:      time.Now(),
				SequenceNum: entry.ID,
			})
		}
	}
	return out, nil
}

// Delete removes a message so it is not redelivered. Standard-queue
// messages are already gone after LPop; FIFO entries must be explicitly
// XDel'd from their group stream.
func (b *RedisBackend) Delete(ctx context.Context, queueName string, fifo bool, messageID string) error {
	if !fifo {
		return nil
	}
	pattern := streamKey(queueName) + ":*"
	keys, err := b.Client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("queuebackend: listing FIFO groups for delete on %s: %w", queueName, err)
	}
	for _, key := range keys {
		if err := b.Client.XDel(ctx, key, messageID).Err(); err != nil {
			return fmt.Errorf("queuebackend: XDel %s %s: %w", key, messageID, err)
		}
	}
	return nil
}

func splitPayload(raw string) (id, body string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0 {
			return raw[:i], raw[i+1:]
		}
	}
	return "", raw
}

func groupFromStreamKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return ""
}
