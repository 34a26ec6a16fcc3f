package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBClient представляет клиент для работы с базой данных через database/sql.
// Используется журналом событий и миграциями.
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient создает новый экземпляр DBClient.
func NewDBClient(ctx context.Context, dsn string, log *logger.Logger) (*DBClient, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DBClient{db: db, log: log}, nil
}

// DB возвращает подключение sqlx
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Migrate применяет встроенные миграции
func (dc *DBClient) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{dc.log})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, dc.db.DB, "migrations"); err != nil {
		dc.log.Errorw("Failed to apply migrations", "error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	dc.log.Info("Database migrations applied")
	return nil
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	err := dc.db.Close()
	if err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *logger.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatal(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Info(format, v...) }
