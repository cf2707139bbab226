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

// Package transport provides the durable, ordered stream abstraction the
// persona protocol is built on: append-only streams with consumer-group
// delivery, acknowledgements, and range scans. The production backend is
// Redis Streams; a miniredis-backed constructor gives the exact same
// semantics for tests without a real Redis server.
package transport

import (
	"context"
	"time"
)

// Message is one entry read back from a stream. Fields mirror what was
// passed to Append: string keys and values only, matching the spec's data
// model for persona requests and replies.
type Message struct {
	ID     string
	Fields map[string]string
}

// Transport is the minimal durable-log contract every step and the
// persona client depend on. Implementations must guarantee that within a
// consumer group, each message is delivered to at most one live consumer,
// and that Ack is idempotent.
type Transport interface {
	// Append writes fields as a new entry on stream and returns its id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// CreateGroup creates a consumer group on stream starting at fromId
	// ("$" for "only new entries", "0" for "from the beginning").
	// Creating a group that already exists is not an error.
	CreateGroup(ctx context.Context, stream, group, fromID string) error

	// ReadGroup reads up to count new (never yet delivered) entries for consumer
	// within group, blocking for up to blockMs milliseconds when nothing
	// is immediately available (0 disables blocking, "do not wait").
	ReadGroup(ctx context.Context, stream, group, consumer string, count int, blockMs int) ([]Message, error)

	// Ack marks id as processed within group so it is not redelivered.
	Ack(ctx context.Context, stream, group, id string) error

	// Range returns entries with ids in [fromID, toID] (inclusive),
	// "-" and "+" meaning the smallest and largest possible ids.
	Range(ctx context.Context, stream, fromID, toID string) ([]Message, error)
}

// BlockIndefinitely requests that ReadGroup block until at least one
// message is available, with no time limit (mapped to Redis's `BLOCK 0`).
const BlockIndefinitely = -1

// defaultClientTimeout bounds any single round trip to the backend so a
// stalled network connection cannot hang a coordinator or persona worker
// forever; it is independent of ReadGroup's own blockMs argument.
const defaultClientTimeout = 30 * time.Second
