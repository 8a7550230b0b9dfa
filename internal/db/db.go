package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"syncpanel/internal/config"
)

var ErrEmptyDSN = errors.New("db dsn is empty")

// slowQuery is the threshold above which journal queries are logged.
const slowQuery = 500 * time.Millisecond

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to postgres. Slow queries and errors go to log at warn level;
// pass nil to silence gorm entirely.
func Open(cfg config.DBConfig, log *zap.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrEmptyDSN
	}
	gl := gormlogger.Default.LogMode(gormlogger.Silent)
	if log != nil {
		gl = gormlogger.New(zapPrinter{log: log.Named("gorm")}, gormlogger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func SetTimezone(ctx context.Context, db *DB, tz string) error {
	if db == nil || db.SQL == nil || tz == "" {
		return nil
	}
	_, err := db.SQL.ExecContext(ctx, "SET TIME ZONE '"+strings.ReplaceAll(tz, "'", "''")+"'")
	return err
}

type zapPrinter struct {
	log *zap.Logger
}

func (p zapPrinter) Printf(format string, args ...any) {
	p.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
