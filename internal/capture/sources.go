package capture

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// StaticLocator returns a fixed position, as reported by a device that
// already resolved its fix (the CLI passes it via flags).
type StaticLocator struct {
	mu  sync.Mutex
	pos Position
	err error
}

func NewStaticLocator(pos Position) *StaticLocator {
	return &StaticLocator{pos: pos}
}

// Fail makes subsequent lookups return err.
func (l *StaticLocator) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *StaticLocator) CurrentPosition(ctx context.Context, _ time.Duration) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return Position{}, l.err
	}
	pos := l.pos
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}
	return pos, nil
}

// FileCamera reads the photo from disk.
type FileCamera struct {
	Path string
}

func (c FileCamera) Capture(ctx context.Context) (Photo, error) {
	if err := ctx.Err(); err != nil {
		return Photo{}, err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return Photo{}, fmt.Errorf("reading photo %s: %w", c.Path, err)
	}
	return Photo{Data: data, ContentType: http.DetectContentType(data)}, nil
}
