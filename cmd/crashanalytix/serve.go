package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/mvahmadali/CrashAnalytix/internal/http"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(rt *runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				rt.cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), rt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	a, err := newApp(ctx, rt)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			rt.log.Error().Err(err).Msg("failed to release resources")
		}
	}()

	handler := httpapi.NewHandler(a.service, rt.cfg, rt.log)
	router := httpapi.NewRouter(rt.cfg, handler, a.registry, rt.log)

	srv := &http.Server{
		Addr:         rt.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  rt.cfg.Server.ReadTimeout,
		WriteTimeout: rt.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info().
			Str("addr", srv.Addr).
			Str("store_backend", a.service.StoreBackend()).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
