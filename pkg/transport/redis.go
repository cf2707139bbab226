// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport over Redis Streams (XADD, XGROUP
// CREATE, XREADGROUP, XACK, XRANGE). It works unmodified against both a
// real Redis server and an in-process miniredis instance, which is how
// NewInMemory below achieves semantic parity for tests.
type RedisTransport struct {
	client *redis.Client
}

// NewRedis wraps an already-configured go-redis client.
func NewRedis(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

// NewRedisAddr dials a Redis server at addr.
func NewRedisAddr(addr string) *RedisTransport {
	return &RedisTransport{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (t *RedisTransport) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultClientTimeout)
	defer cancel()

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

func (t *RedisTransport) CreateGroup(ctx context.Context, stream, group, fromID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultClientTimeout)
	defer cancel()

	err := t.client.XGroupCreateMkStream(ctx, stream, group, fromID).Err()
	if err != nil && isGroupExistsErr(err) {
		return nil
	}
	return err
}

func isGroupExistsErr(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}

func (t *RedisTransport) ReadGroup(ctx context.Context, stream, group, consumer string, count int, blockMs int) ([]Message, error) {
	block := time.Duration(blockMs) * time.Millisecond
	switch blockMs {
	case BlockIndefinitely:
		block = 0
	case 0:
		// go-redis sends Block 0 as BLOCK 0 (wait forever); a negative
		// Block omits the BLOCK argument so the read returns at once.
		block = -1
	}

	readCtx := ctx
	var cancel context.CancelFunc
	if blockMs >= 0 {
		readCtx, cancel = context.WithTimeout(ctx, block+defaultClientTimeout)
		defer cancel()
	}

	res, err := t.client.XReadGroup(readCtx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, toMessage(m))
		}
	}
	return out, nil
}

func (t *RedisTransport) Ack(ctx context.Context, stream, group, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultClientTimeout)
	defer cancel()
	return t.client.XAck(ctx, stream, group, id).Err()
}

func (t *RedisTransport) Range(ctx context.Context, stream, fromID, toID string) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultClientTimeout)
	defer cancel()

	res, err := t.client.XRange(ctx, stream, fromID, toID).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(res))
	for _, m := range res {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func toMessage(m redis.XMessage) Message {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return Message{ID: m.ID, Fields: fields}
}

// Close releases the underlying Redis connection pool.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
