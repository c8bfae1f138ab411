// Package ack classifies responses observed during an upload into the two
// acknowledgments the upload session waits for.
//
// The remote service never exposes a status endpoint. Instead the session
// watches every response the page receives and asks a Classifier whether the
// response is an initiation acknowledgment (the service accepted the transfer
// and assigned it an id), a completion acknowledgment (the uploaded item has
// started processing and has a public reference), or unrelated traffic.
//
// Payload shapes belong to the remote service and change independently of
// hopper, so they live here behind the Classifier interface rather than in the
// session state machine.
package ack
