// Package logging provides a human-oriented slog.Handler for terminal
// output. Records render as one line: timestamp, padded level, message,
// then key=value attributes, with ANSI colors when enabled.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var bufPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

type Options struct {
	Level      slog.Level
	UseColor   bool
	TimeFormat string
	LevelWidth int
}

func DefaultOptions() Options {
	return Options{
		Level:      slog.LevelInfo,
		UseColor:   true,
		TimeFormat: time.TimeOnly,
		LevelWidth: 5,
	}
}

type Handler struct {
	opts  Options
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr

	colorTime  func(...any) string
	colorMsg   func(...any) string
	colorAttr  func(...any) string
	colorLevel map[slog.Level]func(...any) string
}

func NewHandler(w io.Writer, opts *Options) *Handler {
	if opts == nil {
		o := DefaultOptions()
		opts = &o
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.TimeOnly
	}
	if opts.LevelWidth <= 0 {
		opts.LevelWidth = 5
	}

	h := &Handler{
		opts: *opts,
		mu:   &sync.Mutex{},
		w:    w,
	}
	h.initColors()

	return h
}

func (h *Handler) initColors() {
	plain := func(a ...any) string { return fmt.Sprint(a...) }

	if !h.opts.UseColor {
		h.colorTime = plain
		h.colorMsg = plain
		h.colorAttr = plain
		h.colorLevel = map[slog.Level]func(...any) string{
			slog.LevelDebug: plain,
			slog.LevelInfo:  plain,
			slog.LevelWarn:  plain,
			slog.LevelError: plain,
		}
		return
	}

	h.colorTime = color.New(color.FgHiBlack).SprintFunc()
	h.colorMsg = color.New(color.FgCyan).SprintFunc()
	h.colorAttr = color.New(color.FgHiBlack).SprintFunc()
	h.colorLevel = map[slog.Level]func(...any) string{
		slog.LevelDebug: color.New(color.FgMagenta).SprintFunc(),
		slog.LevelInfo:  color.New(color.FgBlue).SprintFunc(),
		slog.LevelWarn:  color.New(color.FgYellow).SprintFunc(),
		slog.LevelError: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	buf.WriteString(h.colorTime(r.Time.Format(h.opts.TimeFormat)))
	buf.WriteByte(' ')
	buf.WriteString(h.formatLevel(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(h.colorMsg(r.Message))

	for _, attr := range h.attrs {
		h.writeAttr(buf, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.writeAttr(buf, attr)
		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	clone := &Handler{
		opts:  h.opts,
		mu:    h.mu,
		w:     h.w,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
	clone.initColors()

	return clone
}

// WithGroup is accepted but flattened; grouped output buys nothing on a
// single-line terminal format.
func (h *Handler) WithGroup(string) slog.Handler { return h }

func (h *Handler) formatLevel(level slog.Level) string {
	s := fmt.Sprintf("%-*s", h.opts.LevelWidth, strings.ToUpper(level.String()))
	if f, ok := h.colorLevel[level]; ok {
		return f(s)
	}
	return s
}

func (h *Handler) writeAttr(buf *bytes.Buffer, attr slog.Attr) {
	v := attr.Value.Resolve()

	buf.WriteByte(' ')
	buf.WriteString(h.colorAttr(fmt.Sprintf("%s=%v", attr.Key, v.Any())))
}
