package realtime

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

var errStreamUnsupported = errors.New("realtime: response writer cannot flush")

// SetStreamHeaders prepares w for a text/event-stream response.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteFrame writes one server-sent event.
func WriteFrame(w io.Writer, msg Message) error {
	var b strings.Builder
	b.Grow(len(msg.Event) + len(msg.Data) + 16)
	if msg.Event != "" {
		b.WriteString("event: ")
		b.WriteString(msg.Event)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(msg.Data)
	b.WriteString("\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Serve pumps conn's queue to w until ctx ends, the connection is
// unregistered, or a write fails. first is written before anything else.
// A comment frame is sent every heartbeat so dead peers surface as write errors.
func Serve(ctx context.Context, w http.ResponseWriter, conn *Conn, first Message, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamUnsupported
	}
	if err := WriteFrame(w, first); err != nil {
		return err
	}
	flusher.Flush()

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return nil
		case msg := <-conn.Messages():
			if err := WriteFrame(w, msg); err != nil {
				return err
			}
			flusher.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// Frame is a decoded server-sent event.
type Frame struct {
	Event string
	Data  []byte
}

// FrameReader decodes a text/event-stream body. Comment lines are skipped.
type FrameReader struct {
	sc *bufio.Scanner
}

func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &FrameReader{sc: sc}
}

// Next returns the next frame carrying data. It returns io.EOF when the
// stream ends cleanly.
func (r *FrameReader) Next() (Frame, error) {
	var (
		f       Frame
		hasData bool
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if hasData {
				return f, nil
			}
			f = Frame{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			f.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if hasData {
				f.Data = append(f.Data, '\n')
			}
			f.Data = append(f.Data, chunk...)
			hasData = true
		}
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
