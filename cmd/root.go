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
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/logging"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	_ "github.com/speca-google/goes-agents-poc/internal/warehouse/bigquery"
	_ "github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse/duckdb"
	_ "github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse/mysql"
	_ "github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse/postgres"
	_ "github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse/sqlserver"
)

var (
	v          = config.New()
	cfg        *config.Config
	logger     = zap.NewNop()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "goes-agent",
	Short: "Answers questions about El Salvador public spending with SQL",
	Long: `goes-agent is a natural-language analytics agent over the government budget
execution dataset. It compiles the dataset schema for the model, runs the SQL the
model writes, and answers in Spanish.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initFlagsAndConfig,
	PersistentPostRunE: syncLogger,
}

// initFlagsAndConfig resolves configuration from flags, environment and files.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(config.AppFs); err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	loaded, err := config.Load(v, config.AppFs)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func syncLogger(cmd *cobra.Command, args []string) error {
	_ = logger.Sync()
	return nil
}

func validateBackend(backend string) error {
	if _, err := warehouse.GetBackend(backend); err != nil {
		return fmt.Errorf("unsupported backend: %s (only %s are supported)", backend, strings.Join(warehouse.Backends(), ", "))
	}
	return nil
}

// setupWarehouse validates the configuration and connects to the warehouse.
func setupWarehouse(ctx context.Context) (warehouse.Warehouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateBackend(cfg.Warehouse.Backend); err != nil {
		return nil, err
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse, logger)
	if err != nil {
		logger.Error("failed to connect to warehouse", zap.String("backend", cfg.Warehouse.Backend), zap.Error(err))
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return wh, nil
}

// setupWarehouseOrNil is setupWarehouse for the agent surfaces: a connection failure
// is logged and the tools report the client as unavailable instead of aborting.
func setupWarehouseOrNil(ctx context.Context) (warehouse.Warehouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateBackend(cfg.Warehouse.Backend); err != nil {
		return nil, err
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse, logger)
	if err != nil {
		logger.Error("warehouse unavailable, continuing without it", zap.String("backend", cfg.Warehouse.Backend), zap.Error(err))
		return nil, nil
	}
	return wh, nil
}

func closeWarehouse(wh warehouse.Warehouse) {
	if wh == nil {
		return
	}
	if err := wh.Close(); err != nil {
		logger.Warn("failed to close warehouse", zap.Error(err))
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (defaults to ./goes-agent.yaml or ~/.config/goes-agent/goes-agent.yaml)")

	// Warehouse flags
	flags.String("backend", "", fmt.Sprintf("Warehouse backend (%s)", strings.Join(warehouse.Backends(), ", ")))
	flags.String("project", "", "Project (BigQuery) or database name (BQ_PROJECT_ID)")
	flags.String("dataset", "", "Dataset (BigQuery) or schema name (BQ_DATASET_ID)")
	flags.String("location", "", "BigQuery job location")
	flags.String("credentials-file", "", "Service account credentials file for BigQuery")
	flags.String("host", "", "Database host (SQL backends)")
	flags.Int("port", 0, "Database port (SQL backends)")
	flags.String("username", "", "Database username (SQL backends)")
	flags.String("password", "", "Database password (SQL backends)")
	flags.String("database", "", "Database name when it differs from the project (SQL backends)")
	flags.String("sslmode", "", "PostgreSQL sslmode")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (cloudsql* backends)")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection")
	flags.String("duckdb-path", "", "DuckDB database file (duckdb backend; empty for in-memory)")

	// Agent flags
	flags.String("gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")
	flags.String("model", "", "Gemini model (AGENT_ROOT_MODEL)")
	flags.Float64("temperature", 0, "Model temperature")
	flags.Int("max-tool-calls", 0, "Maximum tool rounds per question")
	flags.StringSlice("context", nil, "Comma-separated list of context files appended to the agent instructions")
	flags.String("agent-file", "", "Agent definition file (defaults to config.yaml)")

	// Tool flags
	flags.Bool("read-only-guard", true, "Reject queries that are not a single SELECT or WITH statement")
	flags.Bool("skip-failed-tables", false, "Leave out tables whose metadata cannot be read instead of failing")

	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")

	for key, flag := range map[string]string{
		"warehouse.backend":                           "backend",
		"warehouse.project_id":                        "project",
		"warehouse.dataset_id":                        "dataset",
		"warehouse.location":                          "location",
		"warehouse.credentials_file":                  "credentials-file",
		"warehouse.host":                              "host",
		"warehouse.port":                              "port",
		"warehouse.user":                              "username",
		"warehouse.password":                          "password",
		"warehouse.dbname":                            "database",
		"warehouse.sslmode":                           "sslmode",
		"warehouse.cloudsql_instance_connection_name": "cloudsql-instance-connection-name",
		"warehouse.cloudsql_use_private_ip":           "cloudsql-use-private-ip",
		"warehouse.duckdb_path":                       "duckdb-path",
		"gemini_api_key":                              "gemini-api-key",
		"agent.model":                                 "model",
		"agent.temperature":                           "temperature",
		"agent.max_tool_calls":                        "max-tool-calls",
		"agent.context_files":                         "context",
		"agent.definition_file":                       "agent-file",
		"query.read_only_guard":                       "read-only-guard",
		"schema.skip_failed_tables":                   "skip-failed-tables",
		"log.level":                                   "log-level",
		"log.format":                                  "log-format",
	} {
		bindFlag(key, flag)
	}

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(validateKeyCmd)
}
