package report

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// lineHandler is a slog handler that writes each record as one flat JSON
// object: the record time plus its attributes, without level or message.
// Groups are flattened into dotted keys.
type lineHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	preset []slog.Attr
	prefix string
}

func newLineHandler(out io.Writer) *lineHandler {
	return &lineHandler{mu: &sync.Mutex{}, out: out}
}

func (h *lineHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	line := make(map[string]any, r.NumAttrs()+len(h.preset)+1)
	line["time"] = r.Time.UTC().Format(time.DateTime)

	for _, a := range h.preset {
		addAttr(line, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(line, h.prefix, a)
		return true
	})

	data, err := json.Marshal(line)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(append(data, '\n'))
	return err
}

func addAttr(line map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(line, groupPrefix, ga)
		}
		return
	}
	if v := a.Value.Any(); v != nil {
		line[prefix+a.Key] = v
	}
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = make([]slog.Attr, 0, len(h.preset)+len(attrs))
	next.preset = append(next.preset, h.preset...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.preset = append(next.preset, a)
	}
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
