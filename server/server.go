package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/touka-aoi/drawsync/server/handler"
)

type Server struct {
	HTTP   *http.Server
	accept *handler.AcceptHandler
}

func NewServer(addr string, h http.Handler, accept *handler.AcceptHandler) *Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{
		HTTP:   httpServer,
		accept: accept,
	}
}

// Serve は ln で待ち受けます。Shutdown による停止は nil を返します。
func (s *Server) Serve(ln net.Listener) error {
	if err := s.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は新規受付を止めてから WebSocket 接続を閉じます。
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTP.Shutdown(ctx)
	if s.accept != nil {
		s.accept.CloseAll()
	}
	return err
}

func (s *Server) Close() error { return s.HTTP.Close() }
func (s *Server) Addr() string { return s.HTTP.Addr }
