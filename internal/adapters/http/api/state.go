package api

// requestState tracks one request through the job handler. The walk is
// strictly forward: received -> validated -> computed -> responded, with
// rejected and failed as terminal exits.
type requestState string

const (
	stateReceived  requestState = "received"
	stateValidated requestState = "validated"
	stateComputed  requestState = "computed"
	stateResponded requestState = "responded"
	stateRejected  requestState = "rejected"
	stateFailed    requestState = "failed"
)
