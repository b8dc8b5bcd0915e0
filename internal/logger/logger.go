// Package logger sets up structured logging and provides a thread-safe
// io.Writer that buffers log lines in a ring buffer, so recent lines can be
// inspected or streamed through an HTTP endpoint.
package logger

import (
	"container/ring"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Logf is the basic logger type: a printf-like func. Like [log.Printf], the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface.
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", p)
	return len(p), nil
}

// Logger is a [slog.Logger] with a level that can be changed at runtime.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// New returns a Logger writing text records to w and, if s is not nil, to
// the streamer s.
func New(w io.Writer, s Streamer) *Logger {
	level := new(slog.LevelVar)
	if s != nil {
		w = io.MultiWriter(w, s)
	}
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		Level:  level,
	}
}

// Streamer is an io.Writer that contains recently logged lines and allows to
// stream them.
type Streamer interface {
	io.Writer
	http.Handler

	// Lines returns all buffered lines, oldest first.
	Lines() []string

	// Stream generates a new channel which will stream any newly logged lines.
	// Deregister the stream by calling the close function.
	Stream() (<-chan string, func())
}

// NewStreamer returns a new Streamer backed by a ring buffer of the given size.
func NewStreamer(size int) Streamer {
	return &lineRingBuffer{
		size:    size,
		r:       ring.New(size),
		streams: make(map[chan string]struct{}),
	}
}

type lineRingBuffer struct {
	mu        sync.RWMutex
	size      int
	remainder string
	r         *ring.Ring
	streams   map[chan string]struct{}
}

func (lrb *lineRingBuffer) Write(b []byte) (int, error) {
	lrb.mu.Lock()
	defer lrb.mu.Unlock()

	text := lrb.remainder + string(b)
	for {
		idx := strings.IndexByte(text, '\n')
		if idx == -1 {
			break
		}
		line := text[:idx+1]
		lrb.r.Value = line
		for stream := range lrb.streams {
			select {
			case stream <- line:
			default:
				// Slow readers miss lines.
			}
		}
		lrb.r = lrb.r.Next()
		text = text[idx+1:]
	}
	lrb.remainder = text
	return len(b), nil
}

func (lrb *lineRingBuffer) Lines() []string {
	lrb.mu.RLock()
	defer lrb.mu.RUnlock()
	lines := make([]string, 0, lrb.size)
	lrb.r.Do(func(x any) {
		if x != nil {
			lines = append(lines, x.(string))
		}
	})
	return lines
}

func (lrb *lineRingBuffer) Stream() (<-chan string, func()) {
	lrb.mu.Lock()
	defer lrb.mu.Unlock()

	stream := make(chan string, lrb.size+1)
	lrb.streams[stream] = struct{}{}

	return stream, func() {
		lrb.mu.Lock()
		defer lrb.mu.Unlock()
		delete(lrb.streams, stream)
		close(stream)
	}
}

// ServeHTTP writes buffered lines and, if the client asked for
// text/event-stream, keeps streaming new lines until the request is done.
func (lrb *lineRingBuffer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	if !strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, line := range lrb.Lines() {
			io.WriteString(w, line)
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	stream, closeFunc := lrb.Stream()
	defer closeFunc()

	for {
		select {
		case line := <-stream:
			fmt.Fprintf(w, "event: logline\ndata: %s\n", strings.TrimSuffix(line, "\n"))
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

var _ Streamer = (*lineRingBuffer)(nil)
