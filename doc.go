/*
Package relay is an in-process message bus that mediates all interaction
between application components (LLM-driven engines, tool executors, UI and
API layers) through two message kinds: commands, which are single-addressee
requests expecting a result, and events, which are broadcast notifications.

The bus guarantees:

  - Exactly-one-handler command dispatch: one handler per command kind per
    scope, conflicting registrations rejected loudly.
  - Multi-handler event fan-out with per-handler failure containment: one
    failing handler never stops its siblings, and every failure surfaces as
    an EventHandlerFailedEvent.
  - Session isolation: handlers registered through a session see only that
    session's events; Global handlers see everything.
  - Chronologically ordered delayed delivery for scheduled events.
  - A drain barrier for producers that must observe the side effects of their
    own published events.

# Basic Usage

	bus := relay.New()
	bus.Start()
	defer bus.Stop(ctx)

	err := bus.RegisterCommandHandler("engine.prompt",
		messages.CommandHandlerFor(func(ctx context.Context, cmd *PromptCommand) (any, error) {
			return engine.Turn(ctx, cmd.Prompt)
		}))

	res := bus.Execute(ctx, &PromptCommand{
		CommandEnvelope: messages.NewCommandEnvelope(messages.Global),
		Prompt:          "hello",
	})

Sessions scope registrations to one client or conversation:

	err := bus.WithSession(ctx, func(ctx context.Context, s *relay.Session) error {
		s.RegisterEventHandler("engine.status", forwardToClient)
		res := s.Execute(ctx, cmd)
		return nil
	})

This bus is a single-process coordination primitive, not a broker: no
persistence, no redelivery, no wire format.
*/
package relay
