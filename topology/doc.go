// Package topology builds a running pipeline from a config.Config.
//
// Every enabled source gets a bounded channel of buffer.max_events. The buffer forwards
// those events to the channel of each sink that lists the source in its inputs:
//
//	memory  fans each source channel out in process; sends block while a sink is full
//	nats    publishes each event as a CBOR envelope to <subject_prefix>.<source> and
//	        subscribes every sink to the subjects of its inputs
//
// # Lifecycle
//
//	topo, err := topology.Build(cfg, registry, deps)
//	if err != nil {
//		return err
//	}
//	if err := topo.Start(ctx); err != nil {
//		return err
//	}
//	...
//	clean := topo.Stop(time.Now().Add(cfg.Shutdown.Timeout()))
//
// Start runs the sink healthchecks first. Their results are kept in Monitor and, with
// health.require_healthy, a failure aborts the start.
//
// Stop signals the sources through a shutdown.Coordinator. Sink channels are closed once
// nothing can feed them any more, so sinks drain what is buffered and finish on their own.
// Sinks still running halfway to the deadline are signalled as well. Events a stopped
// sink never took are finalized as errored.
package topology
