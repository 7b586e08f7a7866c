// Copyright 2024 gorse Project Authors
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

package record

import (
	"context"
	"database/sql"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	_ "modernc.org/sqlite"
)

const (
	MySQLPrefix      = "mysql://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
)

// Record is a finished job as stored in the database.
type Record struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"index;size:36"`
	Algorithm string    `gorm:"index;size:64"`
	Params    string    `gorm:"size:1024"`
	RMSE      float32   `gorm:"column:rmse"`
	Loss      float32   `gorm:"column:loss"`
	F1        float32   `gorm:"column:f1"`
	HitRatio  float32   `gorm:"column:hit_ratio"`
	NDCG      float32   `gorm:"column:ndcg"`
	Precision float32   `gorm:"column:precision_mean"`
	Elapsed   int64     `gorm:"column:elapsed_ms"`
	Error     string    `gorm:"column:error_message;size:1024"`
	CreatedAt time.Time `gorm:"index"`
}

// Database stores records through gorm.
type Database struct {
	client *sql.DB
	gormDB *gorm.DB
}

func newGORMConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Logger()), logger.Config{
			SlowThreshold: 10 * time.Second,
			LogLevel:      logger.Warn,
		}),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
		},
	}
}

// Open connects to a database given by a URL: mysql://, postgres://, postgresql:// or sqlite://.
func Open(path, tablePrefix string) (*Database, error) {
	var (
		database = new(Database)
		err      error
	)
	switch {
	case strings.HasPrefix(path, MySQLPrefix):
		name := path[len(MySQLPrefix):]
		cfg, parseErr := mysqldriver.ParseDSN(name)
		if parseErr != nil {
			return nil, errors.Trace(parseErr)
		}
		cfg.ParseTime = true
		if database.client, err = sql.Open("mysql", cfg.FormatDSN()); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), newGORMConfig(tablePrefix))
	case strings.HasPrefix(path, PostgresPrefix), strings.HasPrefix(path, PostgreSQLPrefix):
		if database.client, err = sql.Open("postgres", path); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), newGORMConfig(tablePrefix))
	case strings.HasPrefix(path, SQLitePrefix):
		name := path[len(SQLitePrefix):]
		params := []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}
		name += "?" + strings.Join(lo.Map(params, func(p lo.Tuple2[string, string], _ int) string {
			return p.A + "=" + p.B
		}), "&")
		if database.client, err = sql.Open("sqlite", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, newGORMConfig(tablePrefix))
	default:
		return nil, errors.NotSupportedf("database %s", path)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return database, nil
}

// Init creates the record table.
func (d *Database) Init() error {
	return errors.Trace(d.gormDB.AutoMigrate(&Record{}))
}

func (d *Database) Close() error {
	return errors.Trace(d.client.Close())
}

func (d *Database) Insert(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&records).Error)
}

// Best returns up to n successful records of a run ordered by ascending RMSE. All algorithms
// are included when algorithm is empty.
func (d *Database) Best(ctx context.Context, runID, algorithm string, n int) ([]Record, error) {
	tx := d.gormDB.WithContext(ctx).Where("run_id = ? AND error_message = ?", runID, "")
	if algorithm != "" {
		tx = tx.Where("algorithm = ?", algorithm)
	}
	var records []Record
	if err := tx.Order("rmse").Order("id").Limit(n).Find(&records).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return records, nil
}

// Count returns the number of records of a run.
func (d *Database) Count(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(&Record{}).Where("run_id = ?", runID).Count(&count).Error
	return count, errors.Trace(err)
}
