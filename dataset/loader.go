// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/gorse-eval/base"
	"github.com/gorse-io/gorse-eval/base/log"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	CSVPrefix        = "csv://"
	MySQLPrefix      = "mysql://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
)

// DefaultQuery selects (user, item, rating) triples.
const DefaultQuery = "SELECT user_id, item_id, rating FROM ratings"

type LoadOptions struct {
	// Query for SQL sources. It must return user id, item id and rating columns.
	Query string
	// Separator and Header for CSV sources.
	Separator string
	Header    bool
}

// Load reads ratings from a data source. Supported sources are csv://path,
// sqlite://path, mysql://dsn and postgres://url.
func Load(ctx context.Context, source string, opts LoadOptions) (*DataModel, error) {
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	if opts.Separator == "" {
		opts.Separator = ","
	}
	var (
		model *DataModel
		err   error
	)
	if strings.HasPrefix(source, CSVPrefix) {
		model, err = loadCSV(source[len(CSVPrefix):], opts)
	} else if strings.HasPrefix(source, SQLitePrefix) {
		model, err = loadSQL(ctx, "sqlite", source[len(SQLitePrefix):], opts.Query, semconv.DBSystemSqlite)
	} else if strings.HasPrefix(source, MySQLPrefix) {
		model, err = loadSQL(ctx, "mysql", source[len(MySQLPrefix):], opts.Query, semconv.DBSystemMySQL)
	} else if strings.HasPrefix(source, PostgresPrefix) || strings.HasPrefix(source, PostgreSQLPrefix) {
		model, err = loadSQL(ctx, "postgres", source, opts.Query, semconv.DBSystemPostgreSQL)
	} else {
		return nil, errors.NotSupportedf("data source %s", log.RedactDBURL(source))
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load ratings",
		zap.String("source", log.RedactDBURL(source)),
		zap.Int("n_users", model.NumUsers()),
		zap.Int("n_items", model.NumItems()),
		zap.Int("n_ratings", model.NumPreferences()))
	return model, nil
}

func loadCSV(path string, opts LoadOptions) (*DataModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	builder := NewBuilder()
	var parseErr error
	err = base.ReadLines(bufio.NewScanner(file), opts.Separator, func(line int, fields []string) bool {
		if line == 0 && opts.Header {
			return true
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			return true
		}
		if len(fields) < 3 {
			parseErr = errors.NotValidf("line %d of %s", line+1, path)
			return false
		}
		userId, itemId, value, err := parseRating(fields[0], fields[1], fields[2])
		if err != nil {
			parseErr = errors.Annotatef(err, "line %d of %s", line+1, path)
			return false
		}
		builder.Add(userId, itemId, value)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return builder.Build(), nil
}

func loadSQL(ctx context.Context, driver, dsn, query string, system attribute.KeyValue) (*DataModel, error) {
	db, err := otelsql.Open(driver, dsn,
		otelsql.WithAttributes(system),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	builder := NewBuilder()
	for rows.Next() {
		var (
			userId, itemId int64
			value          float64
		)
		if err = rows.Scan(&userId, &itemId, &value); err != nil {
			return nil, errors.Trace(err)
		}
		builder.Add(userId, itemId, float32(value))
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return builder.Build(), nil
}

func parseRating(userField, itemField, valueField string) (int64, int64, float32, error) {
	userId, err := base.ParseID(userField)
	if err != nil {
		return 0, 0, 0, errors.Trace(err)
	}
	itemId, err := base.ParseID(itemField)
	if err != nil {
		return 0, 0, 0, errors.Trace(err)
	}
	value, err := base.ParseRating(valueField)
	if err != nil {
		return 0, 0, 0, errors.Trace(err)
	}
	return userId, itemId, value, nil
}
