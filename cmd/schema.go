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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/tools"
	"github.com/speca-google/goes-agents-poc/internal/utils"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Print the schema document handed to the agent",
	Long:    `Compiles CREATE OR REPLACE TABLE statements with example rows for every base table in the dataset.`,
	Example: `goes-agent schema --project gob-sv --dataset gastos --tables devengado,fuentes --out_file gastos_schema.sql`,
	RunE:    runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wh, err := setupWarehouse(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse(wh)

	tables, _ := cmd.Flags().GetString("tables")
	compiler := tools.NewSchemaCompiler(wh, logger, tools.SchemaOptions{
		SkipFailedTables: cfg.Schema.SkipFailedTables,
		Tables:           utils.SplitList(tables),
	})

	logger.Info("compiling schema", zap.String("dataset", wh.Dataset().String()))
	doc, err := compiler.Compile(ctx, wh.Dataset())
	if err != nil {
		return fmt.Errorf("schema compilation failed: %w", err)
	}

	outputFile, _ := cmd.Flags().GetString("out_file")
	save, _ := cmd.Flags().GetBool("save")
	if outputFile == "" && save {
		outputFile = utils.GetDefaultOutputFilePath(cfg.Warehouse.DatasetID, "schema")
	}
	if outputFile == "" {
		fmt.Fprint(cmd.OutOrStdout(), doc)
		return nil
	}
	if err := utils.WriteOutputFile(config.AppFs, outputFile, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema written to: %s\n", outputFile)
	return nil
}

func init() {
	schemaCmd.Flags().String("tables", "", "Comma-separated list of tables to include (defaults to every base table)")
	schemaCmd.Flags().StringP("out_file", "o", "", "File to write the schema document to (defaults to stdout)")
	schemaCmd.Flags().Bool("save", false, "Write the schema document to <dataset>_schema.sql")
}
