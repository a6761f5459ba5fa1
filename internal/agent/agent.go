/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/gemini"
)

// ChatSession sends messages within one conversation, keeping history.
type ChatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// ChatFactory starts a new conversation.
type ChatFactory func() ChatSession

// historyChat drops the turn appended by a failed SendMessage so the call can be
// repeated without duplicating it in the history.
type historyChat struct {
	cs *genai.ChatSession
}

func (h *historyChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	n := len(h.cs.History)
	resp, err := h.cs.SendMessage(ctx, parts...)
	if err != nil {
		h.cs.History = h.cs.History[:n]
	}
	return resp, err
}

// NewGeminiChatFactory starts chats on model.
func NewGeminiChatFactory(model *genai.GenerativeModel) ChatFactory {
	return func() ChatSession {
		return &historyChat{cs: model.StartChat()}
	}
}

type Options struct {
	MaxToolCalls int
	Retry        RetryOptions
}

// Agent answers questions by letting the model call the toolset until it replies
// with text.
type Agent struct {
	tools  *Toolset
	logger *zap.Logger
	opts   Options
}

func New(toolset *Toolset, logger *zap.Logger, opts Options) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = 10
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryOptions
	}
	return &Agent{tools: toolset, logger: logger, opts: opts}
}

// Ask sends question within the session and returns the model's final answer.
func (a *Agent) Ask(ctx context.Context, sess *Session, question string) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns++
	sess.touch(time.Now())

	logger := a.logger.With(zap.String("session_id", sess.ID), zap.Int("turn", sess.turns))
	logger.Info("question received", zap.String("question", question))

	resp, err := a.send(ctx, sess.chat, logger, genai.Text(question))
	if err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		calls := gemini.FunctionCalls(resp)
		if len(calls) == 0 {
			answer, err := gemini.ResponseText(resp)
			if err != nil {
				return "", &ErrModelCall{Msg: "reading answer", Err: err}
			}
			logger.Info("answer produced", zap.Int("tool_rounds", round))
			return answer, nil
		}
		if round >= a.opts.MaxToolCalls {
			return "", &ErrToolLoop{Limit: a.opts.MaxToolCalls}
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			logger.Info("tool requested", zap.String("tool", call.Name), zap.Int("round", round+1))
			parts = append(parts, a.tools.Call(ctx, call))
		}
		resp, err = a.send(ctx, sess.chat, logger, parts...)
		if err != nil {
			return "", err
		}
	}
}

func (a *Agent) send(ctx context.Context, chat ChatSession, logger *zap.Logger, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return withRetry(ctx, a.opts.Retry, logger, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := chat.SendMessage(ctx, parts...)
		if err != nil {
			return nil, &ErrModelCall{
				Msg:       fmt.Sprintf("sending %d part(s)", len(parts)),
				Err:       err,
				Transient: gemini.IsTransient(err),
			}
		}
		return resp, nil
	})
}
