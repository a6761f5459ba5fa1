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
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	DefaultBackend      = "bigquery"
	DefaultModel        = "gemini-1.5-pro-002"
	DefaultTemperature  = float32(0.01)
	DefaultMaxToolCalls = 10
	DefaultAgentFile    = "config.yaml"
	DefaultAddr         = ":8080"
	DefaultSessionIdle  = 30 * time.Minute
	configName          = "goes-agent"
	envPrefix           = "GOES"
)

// AppFs is the filesystem used to probe for optional configuration files.
var AppFs = afero.NewOsFs()

// Config holds all configuration for the application
type Config struct {
	Warehouse    WarehouseConfig
	Agent        AgentConfig
	Schema       SchemaConfig
	Query        QueryConfig
	Server       ServerConfig
	Mirror       MirrorConfig
	Log          LogConfig
	GeminiAPIKey string
}

// WarehouseConfig identifies the target dataset and how to reach it.
// For SQL backends the dataset is a schema and the project is the database (catalog).
type WarehouseConfig struct {
	Backend         string
	ProjectID       string
	DatasetID       string
	Location        string
	CredentialsFile string

	Host                           string
	Port                           int
	User                           string
	Password                       string
	DBName                         string
	SSLMode                        string
	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
	DuckDBPath                     string
}

type AgentConfig struct {
	Name           string
	Description    string
	Model          string
	Temperature    float32
	MaxToolCalls   int
	DefinitionFile string
	ContextFiles   []string
}

type SchemaConfig struct {
	// SkipFailedTables isolates per-table failures instead of aborting schema compilation.
	SkipFailedTables bool
}

type QueryConfig struct {
	ReadOnlyGuard bool
}

type ServerConfig struct {
	Addr        string
	SessionIdle time.Duration
}

// MirrorConfig locates the parquet exports loaded into a local DuckDB mirror.
type MirrorConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

type LogConfig struct {
	Level  string
	Format string
}

// Database returns the database (catalog) name used by SQL backends.
func (w WarehouseConfig) Database() string {
	if w.DBName != "" {
		return w.DBName
	}
	return w.ProjectID
}

// Validate checks the values without which no tool can run.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Warehouse.ProjectID) == "" {
		missing = append(missing, "BQ_PROJECT_ID")
	}
	if strings.TrimSpace(c.Warehouse.DatasetID) == "" {
		missing = append(missing, "BQ_DATASET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent temperature must be between 0 and 2, got %v", c.Agent.Temperature)
	}
	if c.Agent.MaxToolCalls <= 0 {
		return fmt.Errorf("agent max tool calls must be positive, got %d", c.Agent.MaxToolCalls)
	}
	return nil
}

// New returns a viper instance with defaults, environment bindings and the optional
// goes-agent.yaml config file search paths registered.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names kept from the original deployment's environment.
	_ = v.BindEnv("warehouse.project_id", "BQ_PROJECT_ID", "GOES_WAREHOUSE_PROJECT_ID")
	_ = v.BindEnv("warehouse.dataset_id", "BQ_DATASET_ID", "GOES_WAREHOUSE_DATASET_ID")
	_ = v.BindEnv("warehouse.backend", "WAREHOUSE_BACKEND", "GOES_WAREHOUSE_BACKEND")
	_ = v.BindEnv("agent.model", "AGENT_ROOT_MODEL", "GOES_AGENT_MODEL")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOES_GEMINI_API_KEY")

	v.SetDefault("warehouse.backend", DefaultBackend)
	v.SetDefault("warehouse.sslmode", "disable")
	v.SetDefault("agent.max_tool_calls", DefaultMaxToolCalls)
	v.SetDefault("agent.definition_file", DefaultAgentFile)
	v.SetDefault("query.read_only_guard", true)
	v.SetDefault("schema.skip_failed_tables", false)
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.session_idle", DefaultSessionIdle)
	v.SetDefault("mirror.use_ssl", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	return v
}

// LoadDotEnv loads .env and then .env.local (which wins) when present.
func LoadDotEnv(fs afero.Fs) error {
	if _, err := fs.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := fs.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// Load reads the optional config file and resolves every key into a Config.
// Precedence: flags > environment > goes-agent.yaml > agent definition file > defaults.
func Load(v *viper.Viper, fs afero.Fs) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Warehouse: WarehouseConfig{
			Backend:                        strings.ToLower(strings.TrimSpace(v.GetString("warehouse.backend"))),
			ProjectID:                      strings.TrimSpace(v.GetString("warehouse.project_id")),
			DatasetID:                      strings.TrimSpace(v.GetString("warehouse.dataset_id")),
			Location:                       v.GetString("warehouse.location"),
			CredentialsFile:                v.GetString("warehouse.credentials_file"),
			Host:                           v.GetString("warehouse.host"),
			Port:                           v.GetInt("warehouse.port"),
			User:                           v.GetString("warehouse.user"),
			Password:                       v.GetString("warehouse.password"),
			DBName:                         v.GetString("warehouse.dbname"),
			SSLMode:                        v.GetString("warehouse.sslmode"),
			CloudSQLInstanceConnectionName: v.GetString("warehouse.cloudsql_instance_connection_name"),
			UsePrivateIP:                   v.GetBool("warehouse.cloudsql_use_private_ip"),
			DuckDBPath:                     v.GetString("warehouse.duckdb_path"),
		},
		Agent: AgentConfig{
			Name:           v.GetString("agent.name"),
			Description:    v.GetString("agent.description"),
			Model:          v.GetString("agent.model"),
			MaxToolCalls:   v.GetInt("agent.max_tool_calls"),
			DefinitionFile: v.GetString("agent.definition_file"),
			ContextFiles:   v.GetStringSlice("agent.context_files"),
		},
		Schema: SchemaConfig{
			SkipFailedTables: v.GetBool("schema.skip_failed_tables"),
		},
		Query: QueryConfig{
			ReadOnlyGuard: v.GetBool("query.read_only_guard"),
		},
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			SessionIdle: v.GetDuration("server.session_idle"),
		},
		Mirror: MirrorConfig{
			Endpoint:        v.GetString("mirror.endpoint"),
			Region:          v.GetString("mirror.region"),
			Bucket:          v.GetString("mirror.bucket"),
			Prefix:          v.GetString("mirror.prefix"),
			AccessKeyID:     v.GetString("mirror.access_key_id"),
			SecretAccessKey: v.GetString("mirror.secret_access_key"),
			UseSSL:          v.GetBool("mirror.use_ssl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		GeminiAPIKey: v.GetString("gemini_api_key"),
	}

	temperatureSet := v.IsSet("agent.temperature")
	if temperatureSet {
		cfg.Agent.Temperature = float32(v.GetFloat64("agent.temperature"))
	}

	def, err := LoadAgentDefinition(fs, cfg.Agent.DefinitionFile)
	if err != nil {
		return nil, err
	}
	if def != nil {
		if cfg.Agent.Name == "" {
			cfg.Agent.Name = def.AgentName
		}
		if cfg.Agent.Description == "" {
			cfg.Agent.Description = def.Description
		}
		if cfg.Agent.Model == "" {
			cfg.Agent.Model = def.Model
		}
		if !temperatureSet && def.Temperature != nil {
			cfg.Agent.Temperature = *def.Temperature
			temperatureSet = true
		}
	}

	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "goes_fiscal_agent"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if !temperatureSet {
		cfg.Agent.Temperature = DefaultTemperature
	}
	return cfg, nil
}
