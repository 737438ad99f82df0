// Package messages defines the envelope and the two message kinds that flow
// through the bus: commands (addressed to exactly one handler, expecting a
// result) and events (broadcast to zero or more handlers).
//
// Design decisions:
//   - Closed dispatch: every message declares a stable Kind string. Handlers
//     are bound to kinds at registration time; the bus never inspects runtime
//     types to route a message.
//   - Immutability: an envelope is stamped with its session before publish
//     (see Stamp) and never mutated afterwards.
//   - Scheduling is opt-in: any event that embeds Schedule becomes a
//     ScheduledEvent and is held back until its due time.
//
// Concrete message types embed CommandEnvelope or EventEnvelope and add
// their payload fields:
//
//	type PromptCommand struct {
//	    messages.CommandEnvelope
//	    Prompt string `json:"prompt"`
//	}
//
//	func (*PromptCommand) Kind() string { return "engine.prompt" }
//
// Because the envelope carries a pointer-receiver method, concrete messages
// always travel as pointers (*PromptCommand, not PromptCommand).
package messages
