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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/tools"
	"github.com/speca-google/goes-agents-poc/internal/utils"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run SQL through the agent's query tool",
	Long: `Executes each statement the way the agent would and prints the text the agent
receives: a JSON array of rows, the no-data message, or an error message.`,
	Example: `goes-agent query "SELECT EJERCICIO, SUM(DEVENGADO) FROM gastos.devengado GROUP BY 1"
goes-agent query --file consultas.sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	var statements []string
	switch {
	case len(args) == 1 && file != "":
		return errors.New("pass either a SQL argument or --file, not both")
	case len(args) == 1:
		statements = []string{args[0]}
	case file != "":
		stmts, err := utils.ReadSQLStatementsFromFile(config.AppFs, file)
		if err != nil {
			return err
		}
		statements = stmts
	default:
		return errors.New("a SQL statement or --file is required")
	}

	ctx := cmd.Context()
	wh, err := setupWarehouseOrNil(ctx)
	if err != nil {
		return err
	}
	defer closeWarehouse(wh)

	executor := tools.NewQueryExecutor(wh, logger, cfg.Query.ReadOnlyGuard)
	out := cmd.OutOrStdout()
	for i, stmt := range statements {
		if len(statements) > 1 {
			fmt.Fprintf(out, "-- [%d/%d] %s\n", i+1, len(statements), stmt)
		}
		fmt.Fprintln(out, executor.Run(ctx, stmt))
	}
	return nil
}

func init() {
	queryCmd.Flags().StringP("file", "f", "", "File with SQL statements separated by ';'")
}
