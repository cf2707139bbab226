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
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// InMemory is a RedisTransport backed by an embedded miniredis server. It
// satisfies exactly the same Transport semantics as production Redis
// (consumer groups, blocking reads, acks) because it IS Redis Streams,
// just running in-process — there is no separate hand-rolled fake to drift
// out of sync with the real backend.
type InMemory struct {
	*RedisTransport
	server *miniredis.Miniredis
}

// NewInMemory starts an embedded miniredis instance and returns a
// Transport backed by it. Callers must call Close when done.
func NewInMemory() (*InMemory, error) {
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return &InMemory{RedisTransport: NewRedis(client), server: server}, nil
}

// Close stops the embedded server and its client connection.
func (m *InMemory) Close() {
	_ = m.RedisTransport.Close()
	m.server.Close()
}
