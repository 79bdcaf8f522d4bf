package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/drawsync/config"
	"github.com/touka-aoi/drawsync/server"
	"github.com/touka-aoi/drawsync/server/discovery"
	"github.com/touka-aoi/drawsync/server/domain"
	shandler "github.com/touka-aoi/drawsync/server/handler"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("drawsync: exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg.Log); err != nil {
		return err
	}

	app, err := server.NewApp(server.AppOptions{
		Accept: shandler.AcceptOptions{
			OriginPatterns: cfg.AllowedOrigins,
			ReadLimit:      cfg.ReadLimit,
			Endpoint: domain.EndpointConfig{
				IdleTimeout:  cfg.IdleTimeout,
				PingInterval: cfg.PingInterval,
				WriteBuffer:  cfg.WriteBuffer,
			},
		},
		PubSubBuffer:    cfg.PubSubBuffer,
		PurgeEmptyRooms: cfg.PurgeEmptyRooms,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := server.NewServer(cfg.Addr, app.Handler, app.Accept)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MDNS.Enabled {
		port := ln.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(cfg.MDNS.Instance, port, []string{"path=/ws"})
		if err != nil {
			slog.WarnContext(ctx, "mDNS advertisement disabled", "err", err)
		} else {
			defer func() {
				if err := adv.Shutdown(); err != nil {
					slog.Warn("mDNS shutdown failed", "err", err)
				}
			}()
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, "drawsync: listening", "addr", ln.Addr().String(), "purgeEmptyRooms", cfg.PurgeEmptyRooms)
		return srv.Serve(ln)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("drawsync: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown failed", "err", err)
		}
		return app.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func setupLogger(c config.LogConfig) error {
	level, err := c.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch c.Format {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
