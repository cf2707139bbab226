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

package persona

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/observability"
	"github.com/tombee/taskforge/pkg/transport"
)

// pollInterval bounds how long a single ReadGroup blocking call waits
// before the client re-checks the overall deadline. It does not affect
// message latency — a message sitting in the stream is returned as soon
// as ReadGroup observes it.
const pollInterval = 2 * time.Second

// defaultRequestRate is the steady-state cap on outbound persona requests
// per persona, independent of the retry/back-off policy layered on top —
// it exists so a misbehaving loop step cannot flood the request stream
// even if its own back-off is somehow defeated.
const defaultRequestRate = 5 // requests per second

// Client implements the persona request/reply protocol over a Transport.
type Client struct {
	transport   transport.Transport
	groupPrefix string
	consumerID  string
	logger      *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// Metrics is optional; when set, RequestAndAwait reports each retry
	// attempt against it. Nil is a valid, fully functional state.
	Metrics *observability.Metrics
}

// NewClient builds a Client. groupPrefix is combined with a persona name
// to form that persona's reply consumer group, per configuration option
// "groupPrefix".
func NewClient(t transport.Transport, groupPrefix string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport:   t,
		groupPrefix: groupPrefix,
		consumerID:  uuid.NewString(),
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(persona string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[persona]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultRequestRate), defaultRequestRate)
		c.limiters[persona] = l
	}
	return l
}

func replyStream(persona string) string {
	return fmt.Sprintf("persona:replies:%s", persona)
}

// SendPersonaRequest publishes req on the shared request stream, assigning
// it a fresh correlation id (overwriting any prior value on req) and
// returning it. Repo must already be a remote URL: the dispatching step is
// responsible for failing fatally before calling this if it is absent.
func (c *Client) SendPersonaRequest(ctx context.Context, requestStream string, req Request) (string, error) {
	if req.Repo == "" {
		return "", &errors.FatalConfigError{Reason: fmt.Sprintf("persona request to %s has no repo remote URL", req.ToPersona)}
	}

	if err := c.limiterFor(req.ToPersona).Wait(ctx); err != nil {
		return "", err
	}

	req.CorrID = uuid.NewString()

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return "", fmt.Errorf("persona: encoding payload: %w", err)
	}

	fields := map[string]string{
		"workflowId":      req.WorkflowID,
		"toPersona":       req.ToPersona,
		"step":            req.Step,
		"intent":          req.Intent,
		"payload":         string(payload),
		"repo":            req.Repo,
		"branch":          req.Branch,
		"projectId":       req.ProjectID,
		"deadlineSeconds": fmt.Sprintf("%d", req.DeadlineSeconds),
		"corrId":          req.CorrID,
	}

	if _, err := c.transport.Append(ctx, requestStream, fields); err != nil {
		return "", fmt.Errorf("persona: publishing request: %w", err)
	}

	c.logger.Debug("persona request sent",
		"persona", req.ToPersona, "corr_id", req.CorrID, "workflow_id", req.WorkflowID)

	return req.CorrID, nil
}

// WaitForPersonaCompletion blocks on persona's reply stream, using
// consumer-group reads, until a record with the matching corrId is
// observed or timeoutMs elapses. Replies for other correlation ids
// (abandoned retries) are acknowledged and discarded.
func (c *Client) WaitForPersonaCompletion(ctx context.Context, persona, workflowID, corrID string, timeoutMs int) (*Reply, error) {
	stream := replyStream(persona)
	group := fmt.Sprintf("%s:%s", c.groupPrefix, persona)

	if err := c.transport.CreateGroup(ctx, stream, group, "$"); err != nil {
		return nil, fmt.Errorf("persona: creating reply group: %w", err)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &errors.PersonaTimeoutError{Persona: persona, CorrID: corrID, Attempts: 1}
		}

		block := pollInterval
		if remaining < block {
			block = remaining
		}

		msgs, err := c.transport.ReadGroup(ctx, stream, group, c.consumerID, 10, int(block.Milliseconds()))
		if err != nil {
			return nil, fmt.Errorf("persona: reading reply stream: %w", err)
		}

		for _, m := range msgs {
			reply := &Reply{
				CorrID: m.Fields["corrId"],
				Status: ReplyStatus(m.Fields["status"]),
				Result: m.Fields["result"],
			}

			if ackErr := c.transport.Ack(ctx, stream, group, m.ID); ackErr != nil {
				c.logger.Warn("persona: failed to ack reply", "stream", stream, "id", m.ID, "error", ackErr)
			}

			if reply.CorrID != corrID {
				c.logger.Debug("persona: discarding reply for abandoned corrId",
					"persona", persona, "expected_corr_id", corrID, "got_corr_id", reply.CorrID)
				continue
			}

			return reply, nil
		}
	}
}

// RequestAndAwait composes SendPersonaRequest and WaitForPersonaCompletion
// with the retry policy from §4.2: only timeouts retry, up to maxRetries
// additional attempts, sleeping (attempt-1)*30s before each retry and
// issuing a fresh corrId every time. Non-timeout errors propagate
// immediately without retry.
func (c *Client) RequestAndAwait(ctx context.Context, requestStream string, req Request, timeoutMs, maxRetries int) (*Reply, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if c.Metrics != nil {
				c.Metrics.PersonaRetries.WithLabelValues(req.ToPersona).Inc()
			}
			backoff := time.Duration(attempt-1) * defaultRetryBackoffUnit
			c.logger.Info("persona: retrying after timeout",
				"persona", req.ToPersona, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		corrID, err := c.SendPersonaRequest(ctx, requestStream, req)
		if err != nil {
			return nil, err
		}

		reply, err := c.WaitForPersonaCompletion(ctx, req.ToPersona, req.WorkflowID, corrID, timeoutMs)
		if err == nil {
			return reply, nil
		}

		var timeoutErr *errors.PersonaTimeoutError
		if !stderrors.As(err, &timeoutErr) {
			return nil, err
		}

		lastErr = &errors.PersonaTimeoutError{Persona: req.ToPersona, CorrID: corrID, Attempts: attempt}
	}

	return nil, lastErr
}
