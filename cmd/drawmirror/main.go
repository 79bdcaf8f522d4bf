// drawmirror はルームに参加してローカルミラーを保持し、描画内容をログに出すヘッドレスクライアントです。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/touka-aoi/drawsync/application/domain"
	"github.com/touka-aoi/drawsync/client"
	"github.com/touka-aoi/drawsync/handler"
	"github.com/touka-aoi/drawsync/server/discovery"
)

// logSurface は描画要求をログに出すだけの Surface です。
type logSurface struct{}

func (logSurface) Clear() {
	slog.Info("surface: clear")
}

func (logSurface) Draw(a domain.Action) {
	slog.Info("surface: draw", "id", a.ID, "type", a.Type, "userId", a.UserID, "points", len(a.Path), "text", a.Text)
}

func main() {
	if err := run(); err != nil {
		slog.Error("drawmirror: exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	url := flag.String("url", "ws://localhost:8080/ws", "server websocket url")
	room := flag.String("room", "lobby", "room to join")
	name := flag.String("name", "", "display name")
	discover := flag.Duration("discover", 0, "browse the LAN via mDNS for this long and use the first server found")
	debug := flag.Bool("debug", false, "log every received frame")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	target := *url
	if *discover > 0 {
		addrs, err := discovery.Browse(*discover)
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return errors.New("no server found on the LAN")
		}
		target = fmt.Sprintf("ws://%s/ws", addrs[0])
		slog.Info("drawmirror: discovered", "servers", addrs, "using", target)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := client.Dial(dialCtx, target, logSurface{}, client.Options{
		DisplayName: *name,
		OnEvent: func(f handler.Frame) {
			slog.Debug("drawmirror: frame", "type", f.Type, "data", string(f.Data))
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(dialCtx, *room); err != nil {
		return err
	}
	slog.Info("drawmirror: joined", "room", *room, "userId", c.UserID(), "actions", len(c.Mirror().Actions()))

	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return c.Err()
	}
}
