package observability

import (
	"context"
	"io"
	"sync"

	"github.com/casualjim/relay/messages"
	json "github.com/goccy/go-json"
)

// Writer returns a sink that appends one JSON line per event to w. Lifecycle
// events carry their own marshalers, so audit files stay self-describing.
// Writes are serialized; the sink owns no buffering, pass a *bufio.Writer or
// a file as needed.
func Writer(w io.Writer) Handler {
	return &writerHandler{w: w}
}

type writerHandler struct {
	mu sync.Mutex
	w  io.Writer
}

func (h *writerHandler) HandleEvent(_ context.Context, ev messages.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(data); err != nil {
		return err
	}
	_, err = h.w.Write([]byte{'\n'})
	return err
}
