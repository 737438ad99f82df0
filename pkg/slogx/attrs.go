// Package slogx provides slog attribute helpers shared across the bus.
package slogx

import (
	"log/slog"

	"github.com/casualjim/relay/messages"
)

// Error returns a slog.Attr with key "error" and the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Kind returns a slog.Attr carrying a message kind.
func Kind(kind string) slog.Attr {
	return slog.String("kind", kind)
}

// Session returns a slog.Attr carrying a session scope.
func Session(id messages.SessionID) slog.Attr {
	return slog.String("session_id", string(id))
}

// Message returns the attrs identifying a message in one call.
func Message(m messages.Message) []any {
	return []any{
		slog.String("message_id", m.ID().String()),
		Kind(m.Kind()),
		Session(m.Session()),
	}
}
