// Package session drives one end-to-end upload of a single file against the
// remote service and reduces it to an outcome.Outcome.
//
// Each call to Runner.Run opens a fresh Transport, walks the state machine
//
//	Idle -> Authenticating -> Submitting -> AwaitingInitiation -> AwaitingCompletion -> Terminal
//
// and closes the transport before returning. Progress through the two
// awaiting states is driven entirely by responses the transport observes;
// an ack.Classifier decides which of them are acknowledgments. Each awaiting
// state has its own deadline, which is the only way out of a stalled stage
// short of process shutdown.
package session
