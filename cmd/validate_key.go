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
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/speca-google/goes-agents-poc/internal/gemini"
)

var validateKeyCmd = &cobra.Command{
	Use:   "validate-key",
	Short: "Check that the Gemini API key is valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.Agent.Model,
			Temperature: cfg.Agent.Temperature,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.IsAPIKeyValid(ctx); err != nil {
			return fmt.Errorf("Gemini API key is invalid. Please provide a valid api key: %w", err)
		}
		color.New(color.FgGreen, color.Bold).Fprintln(cmd.OutOrStdout(), "Gemini API key is valid.")
		return nil
	},
}
