package domain

import (
	"context"
)

// Transport は Conn（物理接続）が依存するI/O境界です。
// 相手が正常に切断した場合、Read は io.EOF を返します。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(code int32, reason string) error
}
