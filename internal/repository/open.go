package repository

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mvahmadali/CrashAnalytix/internal/db"
	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
)

// Open selects the record store once for the lifetime of the process. When
// postgres cannot be reached the in-memory store is used instead. The
// returned close func is never nil.
func Open(ctx context.Context, cfg db.Config, m *metrics.Metrics, log zerolog.Logger) (Store, func() error) {
	noop := func() error { return nil }

	if cfg.DSN == "" {
		log.Warn().Msg("no database configured, using in-memory accident store; records are lost on restart")
		m.SetStoreBackend(BackendMemory)
		return NewMemoryStore(), noop
	}

	gdb, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Warn().
			Err(err).
			Dur("timeout", cfg.ConnectTimeout).
			Msg("database unreachable, using in-memory accident store; records are lost on restart")
		m.SetStoreBackend(BackendMemory)
		return NewMemoryStore(), noop
	}

	log.Info().Msg("connected to postgres accident store")
	m.SetStoreBackend(BackendPostgres)
	return NewFallbackStore(NewAccidentRepository(gdb), m, log), func() error { return db.Close(gdb) }
}
