package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/soundforge/Tempo/internal/config"
	loggerPkg "github.com/soundforge/Tempo/internal/logger"
)

type Database struct {
	Pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// pgxZerolog adapts zerolog to pgx's tracelog interface.
type pgxZerolog struct {
	logger zerolog.Logger
}

func (l *pgxZerolog) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		event = l.logger.Debug()
	case tracelog.LogLevelInfo:
		event = l.logger.Debug()
	case tracelog.LogLevelWarn:
		event = l.logger.Warn()
	case tracelog.LogLevelError:
		event = l.logger.Error()
	default:
		event = l.logger.Info()
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func New(cfg *config.Config, log *zerolog.Logger, ls *loggerPkg.LoggerService) (*Database, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	poolCfg.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	poolCfg.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	dbLogLevel := zerolog.WarnLevel
	if !cfg.Observability.IsProduction() {
		dbLogLevel = zerolog.DebugLevel
	}
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   &pgxZerolog{logger: loggerPkg.NewPgxLogger(dbLogLevel)},
		LogLevel: tracelog.LogLevel(loggerPkg.GetPgxTraceLogLevel(dbLogLevel)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("Connected to database successfully")

	return &Database{
		Pool:   pool,
		logger: log,
	}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *Database) Close() {
	d.logger.Info().Msg("Closing database connection pool")
	d.Pool.Close()
}
