package ports

import "context"

type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn carries one binary frame per message. WriteMessage may be called from
// several goroutines; ReadMessage from one.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(frame []byte) error
	Close() error
}
