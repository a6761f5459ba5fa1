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
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/mirror"
	"github.com/speca-google/goes-agents-poc/internal/storage/s3"
	"github.com/speca-google/goes-agents-poc/internal/utils"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse/duckdb"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Manage the local DuckDB mirror of the dataset",
}

var mirrorLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load parquet exports from an S3-compatible bucket into DuckDB",
	Long: `Lists the .parquet objects under --prefix, validates them, and creates one table
per directory in the DuckDB file given by --duckdb-path, inside the schema named by
--dataset (main when unset). Existing tables with the same name are replaced.`,
	Example: `goes-agent mirror load --endpoint https://storage.googleapis.com --bucket exportes-gob --prefix gastos --duckdb-path gastos.duckdb --dataset gastos`,
	RunE:    runMirrorLoad,
}

func runMirrorLoad(cmd *cobra.Command, args []string) error {
	if cfg.Warehouse.DuckDBPath == "" {
		return errors.New("--duckdb-path is required to load a mirror")
	}
	schema := cfg.Warehouse.DatasetID
	if schema == "" {
		schema = duckdb.DefaultSchema
	}

	store, err := s3.New(cfg.Mirror)
	if err != nil {
		return err
	}
	pool, err := duckdb.OpenPool(cfg.Warehouse.DuckDBPath)
	if err != nil {
		return err
	}
	defer pool.Close()

	workDir, err := os.MkdirTemp("", "goes-mirror-")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	ctx := cmd.Context()
	loader := mirror.NewLoader(store, pool, config.AppFs, workDir, schema, logger)
	plans, err := loader.Plan(ctx)
	if err != nil {
		return fmt.Errorf("failed to list parquet objects: %w", err)
	}
	if len(plans) == 0 {
		logger.Info("no parquet objects found", zap.String("bucket", store.Bucket()), zap.String("prefix", cfg.Mirror.Prefix))
		return nil
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tFILES\tBYTES")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", p.Table, len(p.Objects), p.Size())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	description := fmt.Sprintf("%d table(s) will be replaced in schema %s of %s", len(plans), schema, cfg.Warehouse.DuckDBPath)
	if !yes && !utils.ConfirmAction(description) {
		logger.Info("mirror load aborted by user")
		return nil
	}

	reports, err := loader.Load(ctx, plans)
	for _, r := range reports {
		color.New(color.FgGreen).Fprintf(out, "loaded %s: %d rows, %d columns\n", r.Table, r.Rows, len(r.Columns))
	}
	if err != nil {
		return err
	}
	logger.Info("mirror load completed", zap.Int("tables", len(reports)))
	return nil
}

func init() {
	flags := mirrorLoadCmd.Flags()
	flags.String("endpoint", "", "S3-compatible endpoint (e.g. https://storage.googleapis.com)")
	flags.String("region", "", "Bucket region")
	flags.String("bucket", "", "Bucket holding the parquet exports")
	flags.String("prefix", "", "Object prefix to load")
	flags.String("access-key-id", "", "Access key (defaults to AWS_ACCESS_KEY_ID)")
	flags.String("secret-access-key", "", "Secret key (defaults to AWS_SECRET_ACCESS_KEY)")
	flags.Bool("use-ssl", true, "Use TLS when the endpoint has no scheme")
	flags.BoolP("yes", "y", false, "Do not ask for confirmation")

	for key, flag := range map[string]string{
		"mirror.endpoint":          "endpoint",
		"mirror.region":            "region",
		"mirror.bucket":            "bucket",
		"mirror.prefix":            "prefix",
		"mirror.access_key_id":     "access-key-id",
		"mirror.secret_access_key": "secret-access-key",
		"mirror.use_ssl":           "use-ssl",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	mirrorCmd.AddCommand(mirrorLoadCmd)
}
