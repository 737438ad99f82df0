package messages

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// The lifecycle events serialize themselves explicitly: they carry interface
// fields and raw-JSON metadata that default struct marshaling would not
// render usefully. Audit sinks rely on these shapes.

func envelopeJSON(kind string, e Envelope) ([]byte, error) {
	result, err := sjson.SetBytes([]byte(`{}`), "kind", kind)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "message_id", e.MessageID.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "session_id", string(e.Session()))
	if err != nil {
		return nil, err
	}

	if !time.Time(e.Timestamp).IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	if e.Meta.Exists() {
		result, err = sjson.SetRawBytes(result, "meta", []byte(e.Meta.Raw))
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// MarshalJSON implements custom JSON marshaling for CommandStartedEvent.
func (e *CommandStartedEvent) MarshalJSON() ([]byte, error) {
	result, err := envelopeJSON(KindCommandStarted, e.Envelope)
	if err != nil {
		return nil, err
	}

	if e.Command != nil {
		result, err = sjson.SetBytes(result, "command_kind", e.Command.Kind())
		if err != nil {
			return nil, err
		}

		cmdBytes, err := json.Marshal(e.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal command: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "command", cmdBytes)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// MarshalJSON implements custom JSON marshaling for CommandResultEvent.
func (e *CommandResultEvent) MarshalJSON() ([]byte, error) {
	result, err := envelopeJSON(KindCommandResult, e.Envelope)
	if err != nil {
		return nil, err
	}

	resBytes, err := json.Marshal(e.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command result: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "result", resBytes)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarshalJSON implements custom JSON marshaling for EventHandlerFailedEvent.
func (e *EventHandlerFailedEvent) MarshalJSON() ([]byte, error) {
	result, err := envelopeJSON(KindHandlerFailed, e.Envelope)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "handler", e.Handler)
	if err != nil {
		return nil, err
	}

	if e.Err != nil {
		result, err = sjson.SetBytes(result, "error", e.Err.Error())
		if err != nil {
			return nil, err
		}
	}

	if e.Event != nil {
		result, err = sjson.SetBytes(result, "event_kind", e.Event.Kind())
		if err != nil {
			return nil, err
		}

		evBytes, err := json.Marshal(e.Event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal offending event: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "event", evBytes)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// MarshalJSON implements custom JSON marshaling for SessionStartedEvent.
func (e *SessionStartedEvent) MarshalJSON() ([]byte, error) {
	return envelopeJSON(KindSessionStarted, e.Envelope)
}

// MarshalJSON implements custom JSON marshaling for SessionEndedEvent.
func (e *SessionEndedEvent) MarshalJSON() ([]byte, error) {
	result, err := envelopeJSON(KindSessionEnded, e.Envelope)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "duration_ns", int64(e.Duration))
	if err != nil {
		return nil, err
	}

	if e.Err != "" {
		result, err = sjson.SetBytes(result, "error", e.Err)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
