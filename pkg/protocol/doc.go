// Package protocol defines the JSON envelope exchanged with subscription
// clients over a WebSocket text frame.
//
// Every frame is an Envelope:
//
//	{ "type": "<tag>", "data": <handler-defined> }
//
// The router only ever looks at "type" (see PeekType); "data" belongs to the
// handler registered for that tag. Failures are reported with the reserved
// "Error" type:
//
//	{ "type": "Error", "data": { "message": "<failure text>" } }
//
// The tags and payloads of the model handlers (ClassInfo, RootClass,
// ModelStructure, FunctionInfo, Subscribe, Unsubscribe, Run) and of the
// VariableUpdate notification live in messages.go.
package protocol
