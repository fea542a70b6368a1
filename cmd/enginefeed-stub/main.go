package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"enginefeed/internal/core/version"
	"enginefeed/internal/modkit"
	"enginefeed/internal/platform/config"
	"enginefeed/internal/platform/logger"
	phttp "enginefeed/internal/platform/net/http"

	stubmod "enginefeed/internal/services/stub/module"
)

func main() {
	root := config.New()
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// http server (reads STUB_ADDR)
	srv := phttp.NewServer(root.Prefix("STUB_"))

	m := stubmod.New(modkit.Deps{Log: *l, Cfg: root})
	m.MountRoutes(srv.Router())
	l.Info().
		Str("addr", srv.Addr()).
		Str("base_path", m.Prefix()).
		Str("version", version.Info("enginefeed-stub").Short()).
		Msg("engine stub starting")

	if err := srv.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("http server stopped")
	}
}
