// Copyright 2025 bookii
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

package counter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidishook"
)

var _ rueidishook.Hook = (*commandHook)(nil)

// commandHook logs every command the counter store issues, with its
// latency. Budget checks sit on the request hot path, so the per-command
// level is debug; only real errors (not nil replies) go to warn.
type commandHook struct {
	log *slog.Logger
}

func newCommandHook(log *slog.Logger) *commandHook {
	return &commandHook{log: log}
}

func (h *commandHook) observe(ctx context.Context, name string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil && !rueidis.IsRedisNil(err) {
		h.log.WarnContext(ctx, "redis command failed",
			slog.String("command", name),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return
	}
	h.log.DebugContext(ctx, "redis command",
		slog.String("command", name),
		slog.Duration("elapsed", elapsed),
	)
}

func commandName(tokens []string) string {
	if len(tokens) == 0 {
		return "(empty)"
	}
	return tokens[0]
}

func (h *commandHook) Do(client rueidis.Client, ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	start := time.Now()
	resp := client.Do(ctx, cmd)
	h.observe(ctx, commandName(cmd.Commands()), start, resp.Error())
	return resp
}

func (h *commandHook) DoMulti(client rueidis.Client, ctx context.Context, multi ...rueidis.Completed) []rueidis.RedisResult {
	start := time.Now()
	resps := client.DoMulti(ctx, multi...)
	var firstErr error
	for _, r := range resps {
		if err := r.Error(); err != nil && !rueidis.IsRedisNil(err) {
			firstErr = err
			break
		}
	}
	h.observe(ctx, fmt.Sprintf("pipeline(%d)", len(multi)), start, firstErr)
	return resps
}

func (h *commandHook) DoCache(client rueidis.Client, ctx context.Context, cmd rueidis.Cacheable, ttl time.Duration) rueidis.RedisResult {
	start := time.Now()
	resp := client.DoCache(ctx, cmd, ttl)
	h.observe(ctx, commandName(cmd.Commands()), start, resp.Error())
	return resp
}

func (h *commandHook) DoMultiCache(client rueidis.Client, ctx context.Context, multi ...rueidis.CacheableTTL) []rueidis.RedisResult {
	start := time.Now()
	resps := client.DoMultiCache(ctx, multi...)
	var firstErr error
	for _, r := range resps {
		if err := r.Error(); err != nil && !rueidis.IsRedisNil(err) {
			firstErr = err
			break
		}
	}
	h.observe(ctx, fmt.Sprintf("pipeline(%d)", len(multi)), start, firstErr)
	return resps
}

func (h *commandHook) Receive(client rueidis.Client, ctx context.Context, subscribe rueidis.Completed, fn func(msg rueidis.PubSubMessage)) error {
	start := time.Now()
	err := client.Receive(ctx, subscribe, fn)
	h.observe(ctx, commandName(subscribe.Commands()), start, err)
	return err
}

func (h *commandHook) DoStream(client rueidis.Client, ctx context.Context, cmd rueidis.Completed) rueidis.RedisResultStream {
	start := time.Now()
	s := client.DoStream(ctx, cmd)
	h.observe(ctx, commandName(cmd.Commands()), start, nil)
	return s
}

func (h *commandHook) DoMultiStream(client rueidis.Client, ctx context.Context, multi ...rueidis.Completed) rueidis.MultiRedisResultStream {
	start := time.Now()
	s := client.DoMultiStream(ctx, multi...)
	h.observe(ctx, fmt.Sprintf("pipeline(%d)", len(multi)), start, nil)
	return s
}
