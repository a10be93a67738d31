// Package process runs build commands as supervised child processes.
//
// Every child is started in its own process group so that signals reach
// the whole tree a shell may spawn. Cancellation is cooperative: each
// Process carries an ordered termination-signal queue and SendNextSignal
// pops one signal per call, escalating from a polite interrupt to a kill:
//
//	proc, err := supervisor.StartWithID(id, "make", cmd, process.DefaultSignals()...)
//	...
//	sig, sent, err := proc.SendNextSignal() // SIGINT
//	sig, sent, err = proc.SendNextSignal()  // SIGTERM
//	sig, sent, err = proc.SendNextSignal()  // SIGKILL
//	_, sent, _ = proc.SendNextSignal()      // sent == false
//
// # Supervisor
//
// The Supervisor tracks running processes and can cap how many run at
// once. The build orchestrator uses a single-slot supervisor:
//
//	supervisor := process.NewSupervisor(process.WithMaxProcesses(1))
//	defer supervisor.Shutdown(5 * time.Second)
//
// # Thread Safety
//
// Both Supervisor and Process are safe for concurrent use.
package process
