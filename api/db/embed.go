package db

import "embed"

//go:embed clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
