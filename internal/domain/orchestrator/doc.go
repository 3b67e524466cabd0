// Package orchestrator drives a game session's window and notifications from
// detection and transport events.
//
// States:
//
//	Idle   --launched(configured)-->            Active
//	Active --closed(configured, same id)-->     Idle
//	any    --window-connected(window name)-->   replay cached notification
//
// Unconfigured ids never produce side effects. Handlers are not safe for
// concurrent use; Attach routes every listener through an Executor, normally
// a Loop, so they run one at a time in arrival order.
//
// Example Usage:
//
//	loop := orchestrator.NewLoop(64, logger)
//	orch := orchestrator.New(orchestrator.Deps{...})
//	go loop.Run(ctx)
//	err := orch.Attach(detector, hub, loop)
package orchestrator
