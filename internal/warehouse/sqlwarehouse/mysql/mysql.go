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
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

type mysqlDialect struct{}

var _ sqlwarehouse.Dialect = (*mysqlDialect)(nil)

func init() {
	warehouse.RegisterBackend("mysql", sqlwarehouse.Opener(mysqlDialect{}))
	warehouse.RegisterBackend("cloudsqlmysql", sqlwarehouse.Opener(mysqlDialect{}))
}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) CreateCloudSQLPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName
	if cfg.User == "" || cfg.Password == "" || cfg.Database() == "" || instanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)
	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			return d.Dial(ctx, instanceConnectionName, opts...)
		})

	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = network
	mysqlCfg.Addr = instanceConnectionName

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (mysqlDialect) CreateStandardPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	dbPool, err := sql.Open("mysql", standardDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

func baseConfig(cfg config.WarehouseConfig) *mysql.Config {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.DBName = cfg.Database()
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.ParseTime = true
	return mysqlCfg
}

func standardDSN(cfg config.WarehouseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	return mysqlCfg.FormatDSN()
}

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ColumnsQuery() string {
	return `
		SELECT column_name, data_type, column_comment
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position`
}

func (mysqlDialect) PreviewQuery(qualifiedTable string, limit int) string {
	return sqlwarehouse.LimitPreview(qualifiedTable, limit)
}

func (mysqlDialect) TxOptions() *sql.TxOptions { return &sql.TxOptions{ReadOnly: true} }

func (mysqlDialect) Lexicon() warehouse.Lexicon { return warehouse.MySQL }
