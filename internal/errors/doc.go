// Package errors provides coded, actionable errors for the tempo command.
//
// Startup failures are reported to operators rather than to clients, so
// they carry a stable code, a category, a hint and, for model source
// problems, the offending lines.
//
// # Error Codes
//
//   - T1xx: configuration
//   - T2xx: model source and runtime
//   - T3xx: server startup
//
// # Usage
//
//	err := errors.New("T201").
//	    WithLocationFromError(parseErr).
//	    WithSource(src)
//
//	errors.PrintError(os.Stderr, err)
//	// ERROR T201: Model source does not compile
//	//
//	//   model.go:4:2
//	//
//	//        3 │ type Plant struct {
//	//   →    4 │     temp float64,
//	//          │     ^
//	//
//	//   Hint: Fix the syntax error and restart the server
package errors
