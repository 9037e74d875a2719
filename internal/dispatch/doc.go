// Package dispatch fans a single GET request out to many concurrent tasks.
//
// This package is internal to burstgate. The main components are:
//
//   - [Pool]: the HTTP transport shared by every task of one dispatch call
//   - [Dispatcher]: creates a pool, launches one goroutine per request and
//     collects their outcomes in completion order
//   - [Outcome]: the recorded result of one request attempt
//
// Users of the burstgate library should not need to interact with this
// package directly. Configuration is done through the main burstgate package.
package dispatch
