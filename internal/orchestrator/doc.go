// Package orchestrator wires the session guard around the scoring engine
// and hands genuine results to the sink adapter.
//
// # Entry Points
//
// Detect runs a detection pass now. Repeated calls in the same session return
// a placeholder without touching the engine. WithForce re-evaluates; the
// guard's cached hash then decides whether the outcome is novel.
//
// Init schedules a pass for host idle time and returns immediately. When the
// scheduled run fires it detects and, unless this was a forced run with
// unchanged traits, sends the traits to the sink. Everything inside the
// scheduled run is recovered: detection never breaks the host.
//
//	d := orchestrator.New(engine, guard, adapter,
//	    orchestrator.WithScheduler(idle),
//	    orchestrator.WithProduction(true))
//	h := d.Init(ctx)
//	<-h.Done()
//
// # Observability
//
// Each pass opens a stackprobe.detect span and updates the Prometheus
// metrics in metrics.go.
package orchestrator
