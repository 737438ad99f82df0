package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/relay/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type auditEvent struct {
	messages.EventEnvelope
	Detail string `json:"detail"`
}

func (*auditEvent) Kind() string { return "test.audit" }

func TestWriter(t *testing.T) {
	t.Run("writes one JSON line per event", func(t *testing.T) {
		var buf bytes.Buffer
		sink := Writer(&buf)

		require.NoError(t, sink.HandleEvent(context.Background(),
			&auditEvent{EventEnvelope: messages.NewEventEnvelope("s1"), Detail: "first"}))
		require.NoError(t, sink.HandleEvent(context.Background(),
			messages.NewSessionEnded("s1", errors.New("teardown"), time.Second)))

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		require.Len(t, lines, 2)

		assert.Equal(t, "first", gjson.Get(lines[0], "detail").String())
		assert.Equal(t, "s1", gjson.Get(lines[0], "session_id").String())

		assert.Equal(t, messages.KindSessionEnded, gjson.Get(lines[1], "kind").String())
		assert.Equal(t, "teardown", gjson.Get(lines[1], "error").String())
	})

	t.Run("propagates write errors", func(t *testing.T) {
		sink := Writer(failingWriter{})
		err := sink.HandleEvent(context.Background(), messages.NewSessionStarted("s1"))
		require.Error(t, err)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestComposite(t *testing.T) {
	t.Run("runs every sink and returns the first error", func(t *testing.T) {
		var calls []string
		mk := func(name string, err error) Handler {
			return HandlerFunc(func(context.Context, messages.Event) error {
				calls = append(calls, name)
				return err
			})
		}

		sink := NewComposite(
			mk("a", nil),
			mk("b", errors.New("b failed")),
			mk("c", errors.New("c failed")),
		)

		err := sink.HandleEvent(context.Background(), messages.NewSessionStarted("s1"))
		require.EqualError(t, err, "b failed")
		assert.Equal(t, []string{"a", "b", "c"}, calls)
	})

	t.Run("empty composite is a no-op", func(t *testing.T) {
		require.NoError(t, NewComposite().HandleEvent(context.Background(), messages.NewSessionStarted("s1")))
	})
}

func TestLog(t *testing.T) {
	ev := messages.NewHandlerFailed(
		&auditEvent{EventEnvelope: messages.NewEventEnvelope("s1")},
		"myHandler", errors.New("kaput"),
	)
	require.NoError(t, Log().HandleEvent(context.Background(), ev))
	require.NoError(t, Log().HandleEvent(context.Background(), messages.NewSessionStarted("s1")))
}
