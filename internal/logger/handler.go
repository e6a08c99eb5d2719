package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	purple = "\033[35m"
	cyan   = "\033[36m"
	gray   = "\033[37m"
	white  = "\033[97m"
)

// PrettyHandler writes one colored line per record for terminals. It prints
// attribute values as it receives them and masks nothing itself: New always
// puts a RedactHandler in front of it, and that wrapper has to stay the
// outermost handler so attributes bound with Logger.With are cleaned before
// PrettyHandler stores them.
type PrettyHandler struct {
	opts  slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{
		opts:  *opts,
		w:     w,
		mu:    &sync.Mutex{},
		attrs: []slog.Attr{},
	}
}

func (h *PrettyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("15:04:05.000")
	fmt.Fprintf(h.w, "%s%s%s ", gray, timeStr, reset)

	level := r.Level.String()
	var levelColor string
	switch r.Level {
	case slog.LevelDebug:
		levelColor = purple
	case slog.LevelInfo:
		levelColor = green
	case slog.LevelWarn:
		levelColor = yellow
	case slog.LevelError:
		levelColor = red
	default:
		levelColor = white
	}

	fmt.Fprintf(h.w, "%s%-5s%s ", levelColor, level, reset)

	fmt.Fprintf(h.w, "%s%s%s", white, r.Message, reset)

	// Bound attributes already carry the group they were added under.
	for _, a := range h.attrs {
		h.printAttrPrefixed("", a)
	}

	r.Attrs(func(a slog.Attr) bool {
		h.printAttrPrefixed(h.group, a)
		return true
	})

	fmt.Fprintln(h.w)
	return nil
}

// printAttrPrefixed flattens group values into dotted keys, so a masked
// field inside a group shows up as payload.refresh_token=[REDACTED].
func (h *PrettyHandler) printAttrPrefixed(prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, inner := range v.Group() {
			h.printAttrPrefixed(key, inner)
		}
		return
	case slog.KindTime:
		fmt.Fprintf(h.w, " %s%s%s=%s", cyan, key, reset, v.Time().Format(time.RFC3339))
		return
	case slog.KindDuration:
		fmt.Fprintf(h.w, " %s%s%s=%s", cyan, key, reset, v.Duration())
		return
	}

	if err, ok := v.Any().(error); ok {
		fmt.Fprintf(h.w, " %s%s%s=%s%v%s", cyan, key, reset, red, err, reset)
		return
	}
	fmt.Fprintf(h.w, " %s%s%s=%v", cyan, key, reset, v.Any())
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		newAttrs = append(newAttrs, a)
	}

	return &PrettyHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu,
		attrs: newAttrs,
		group: h.group,
	}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}

	return &PrettyHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu,
		attrs: h.attrs,
		group: newGroup,
	}
}
