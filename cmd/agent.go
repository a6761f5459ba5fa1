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
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/agent"
	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/gemini"
	"github.com/speca-google/goes-agents-poc/internal/tools"
	"github.com/speca-google/goes-agents-poc/internal/utils"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// agentRuntime is everything an agent surface needs, built from cfg.
type agentRuntime struct {
	agent   *agent.Agent
	toolset *agent.Toolset
	newChat agent.ChatFactory
	client  *gemini.Client
	wh      warehouse.Warehouse
}

func setupAgent(ctx context.Context) (*agentRuntime, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key is not configured. Please set the GEMINI_API_KEY environment variable")
	}
	additionalContext, err := utils.ReadContextFiles(config.AppFs, cfg.Agent.ContextFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to read context files: %w", err)
	}

	wh, err := setupWarehouseOrNil(ctx)
	if err != nil {
		return nil, err
	}
	dataset := warehouse.DatasetHandle{Project: cfg.Warehouse.ProjectID, Dataset: cfg.Warehouse.DatasetID}
	if wh != nil {
		dataset = wh.Dataset()
	}

	compiler := tools.NewSchemaCompiler(wh, logger, tools.SchemaOptions{SkipFailedTables: cfg.Schema.SkipFailedTables})
	executor := tools.NewQueryExecutor(wh, logger, cfg.Query.ReadOnlyGuard)
	toolset := agent.NewToolset(compiler, executor, dataset, logger)

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
	}, logger)
	if err != nil {
		closeWarehouse(wh)
		return nil, err
	}
	model := client.Model(agent.Instructions(additionalContext), toolset.Declarations())

	logger.Info("agent ready",
		zap.String("agent", cfg.Agent.Name),
		zap.String("model", cfg.Agent.Model),
		zap.String("dataset", dataset.String()),
		zap.Bool("warehouse_available", wh != nil))

	return &agentRuntime{
		agent:   agent.New(toolset, logger, agent.Options{MaxToolCalls: cfg.Agent.MaxToolCalls}),
		toolset: toolset,
		newChat: agent.NewGeminiChatFactory(model),
		client:  client,
		wh:      wh,
	}, nil
}

func (r *agentRuntime) Close() {
	if err := r.client.Close(); err != nil {
		logger.Warn("failed to close Gemini client", zap.Error(err))
	}
	closeWarehouse(r.wh)
}
