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
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// AgentDefinition is the agent's config.yaml.
type AgentDefinition struct {
	AgentName   string   `yaml:"agent_name"`
	Description string   `yaml:"description,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Temperature *float32 `yaml:"temperature,omitempty"`
}

// LoadAgentDefinition parses the agent definition file. A missing file is not an
// error and yields a nil definition.
func LoadAgentDefinition(fs afero.Fs, path string) (*AgentDefinition, error) {
	if path == "" {
		return nil, nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat agent definition %s: %w", path, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent definition %s: %w", path, err)
	}

	def := &AgentDefinition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("failed to parse agent definition %s: %w", path, err)
	}
	if def.AgentName == "" {
		return nil, fmt.Errorf("agent definition %s: agent_name is required", path)
	}
	return def, nil
}
