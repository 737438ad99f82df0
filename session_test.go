package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/relay/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIsolation(t *testing.T) {
	t.Run("handlers only see their session's events", func(t *testing.T) {
		b := newBus(t)

		seenA, seenB, seenGlobal := &eventLog{}, &eventLog{}, &eventLog{}
		_, err := b.RegisterEventHandler("test.pong", seenGlobal.handler)
		require.NoError(t, err)

		sa := b.Session(WithSessionID("session-a"))
		t.Cleanup(func() { require.NoError(t, sa.Close(context.Background())) })
		sb := b.Session(WithSessionID("session-b"))
		t.Cleanup(func() { require.NoError(t, sb.Close(context.Background())) })

		_, err = sa.RegisterEventHandler("test.pong", seenA.handler)
		require.NoError(t, err)
		_, err = sb.RegisterEventHandler("test.pong", seenB.handler)
		require.NoError(t, err)

		require.NoError(t, sa.Publish(context.Background(), pong("", "from a")))
		require.NoError(t, sb.Publish(context.Background(), pong("", "from b")))
		require.NoError(t, b.Drain(context.Background()))

		require.Len(t, seenA.events(), 1)
		assert.Equal(t, "from a", seenA.events()[0].(*pongEvent).Payload)
		require.Len(t, seenB.events(), 1)
		assert.Equal(t, "from b", seenB.events()[0].(*pongEvent).Payload)
		assert.Len(t, seenGlobal.events(), 2)
	})

	t.Run("publish stamps the event with the session id", func(t *testing.T) {
		b := newBus(t)
		s := b.Session(WithSessionID("session-a"))
		t.Cleanup(func() { require.NoError(t, s.Close(context.Background())) })

		ev := pong(messages.Global, "hi")
		require.NoError(t, s.Publish(context.Background(), ev))
		assert.Equal(t, messages.SessionID("session-a"), ev.Session())
	})

	t.Run("session commands prefer the session handler", func(t *testing.T) {
		b := newBus(t)
		require.NoError(t, b.RegisterCommandHandler("test.ping",
			func(context.Context, messages.Command) (any, error) { return "global", nil }))

		s := b.Session()
		t.Cleanup(func() { require.NoError(t, s.Close(context.Background())) })
		require.NoError(t, s.RegisterCommandHandler("test.ping",
			func(context.Context, messages.Command) (any, error) { return "session", nil }))

		assert.Equal(t, "session", s.Execute(context.Background(), ping("hi")).Value)
		assert.Equal(t, "global", b.Execute(context.Background(), ping("hi")).Value)
	})

	t.Run("session commands fall back to the global handler", func(t *testing.T) {
		b := newBus(t)
		require.NoError(t, b.RegisterCommandHandler("test.ping",
			func(context.Context, messages.Command) (any, error) { return "global", nil }))

		s := b.Session()
		t.Cleanup(func() { require.NoError(t, s.Close(context.Background())) })

		res := s.Execute(context.Background(), ping("hi"))
		require.True(t, res.Success, res.Err)
		assert.Equal(t, "global", res.Value)
	})

	t.Run("the GLOBAL scope name is reserved", func(t *testing.T) {
		b := newBus(t)
		assert.Panics(t, func() { b.Session(WithSessionID(messages.Global)) })
	})
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("start and end events are published", func(t *testing.T) {
		b := newBus(t)
		started, ended := &eventLog{}, &eventLog{}
		_, err := b.RegisterEventHandler(messages.KindSessionStarted, started.handler)
		require.NoError(t, err)
		_, err = b.RegisterEventHandler(messages.KindSessionEnded, ended.handler)
		require.NoError(t, err)

		s := b.Session(WithSessionID("session-a"))
		require.NoError(t, s.Close(context.Background()))
		require.NoError(t, b.Drain(context.Background()))

		require.Len(t, started.events(), 1)
		assert.Equal(t, messages.SessionID("session-a"), started.events()[0].Session())

		require.Len(t, ended.events(), 1)
		endEv := ended.events()[0].(*messages.SessionEndedEvent)
		assert.Equal(t, messages.SessionID("session-a"), endEv.Session())
		assert.Empty(t, endEv.Err)
		assert.GreaterOrEqual(t, endEv.Duration, time.Duration(0))
	})

	t.Run("close deregisters the session's handlers", func(t *testing.T) {
		b := newBus(t)
		log := &eventLog{}

		s := b.Session(WithSessionID("session-a"))
		_, err := s.RegisterEventHandler("test.pong", log.handler)
		require.NoError(t, err)
		require.NoError(t, s.Close(context.Background()))

		require.NoError(t, b.Publish(context.Background(), pong("session-a", "hi")))
		require.NoError(t, b.Drain(context.Background()))
		assert.Empty(t, log.events())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		b := newBus(t)
		s := b.Session()
		require.NoError(t, s.Close(context.Background()))
		require.NoError(t, s.Close(context.Background()))
		assert.False(t, s.Active())
	})

	t.Run("a closed session rejects everything", func(t *testing.T) {
		b := newBus(t)
		s := b.Session()
		require.NoError(t, s.Close(context.Background()))

		err := s.RegisterCommandHandler("test.ping",
			func(context.Context, messages.Command) (any, error) { return nil, nil })
		require.ErrorIs(t, err, ErrSessionClosed)

		_, err = s.RegisterEventHandler("test.pong", (&eventLog{}).handler)
		require.ErrorIs(t, err, ErrSessionClosed)

		require.ErrorIs(t, s.Publish(context.Background(), pong("", "hi")), ErrSessionClosed)

		res := s.Execute(context.Background(), ping("hi"))
		assert.Equal(t, ErrSessionClosed.Error(), res.Err)
	})
}

func TestWithSession(t *testing.T) {
	t.Run("tears down on return", func(t *testing.T) {
		b := newBus(t)
		log := &eventLog{}

		var id messages.SessionID
		err := b.WithSession(context.Background(), func(_ context.Context, s *Session) error {
			id = s.ID()
			_, err := s.RegisterEventHandler("test.pong", log.handler)
			return err
		})
		require.NoError(t, err)

		require.NoError(t, b.Publish(context.Background(), pong(id, "hi")))
		require.NoError(t, b.Drain(context.Background()))
		assert.Empty(t, log.events())
	})

	t.Run("tears down on error and returns it", func(t *testing.T) {
		b := newBus(t)
		ended := &eventLog{}
		_, err := b.RegisterEventHandler(messages.KindSessionEnded, ended.handler)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = b.WithSession(context.Background(), func(context.Context, *Session) error {
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, b.Drain(context.Background()))
		require.Len(t, ended.events(), 1)
		assert.Equal(t, "boom", ended.events()[0].(*messages.SessionEndedEvent).Err)
	})

	t.Run("tears down on panic and repanics", func(t *testing.T) {
		b := newBus(t)
		log := &eventLog{}

		var id messages.SessionID
		assert.PanicsWithValue(t, "kaput", func() {
			_ = b.WithSession(context.Background(), func(_ context.Context, s *Session) error {
				id = s.ID()
				_, err := s.RegisterEventHandler("test.pong", log.handler)
				require.NoError(t, err)
				panic("kaput")
			})
		})

		require.NoError(t, b.Publish(context.Background(), pong(id, "hi")))
		require.NoError(t, b.Drain(context.Background()))
		assert.Empty(t, log.events())
	})

	t.Run("nested sessions tear down innermost first", func(t *testing.T) {
		b := newBus(t)
		ended := &eventLog{}
		_, err := b.RegisterEventHandler(messages.KindSessionEnded, ended.handler)
		require.NoError(t, err)

		err = b.WithSession(context.Background(), func(ctx context.Context, outer *Session) error {
			return b.WithSession(ctx, func(context.Context, *Session) error {
				return nil
			}, WithSessionID("inner"))
		}, WithSessionID("outer"))
		require.NoError(t, err)

		require.NoError(t, b.Drain(context.Background()))
		require.Len(t, ended.events(), 2)
		assert.Equal(t, messages.SessionID("inner"), ended.events()[0].Session())
		assert.Equal(t, messages.SessionID("outer"), ended.events()[1].Session())
	})
}
