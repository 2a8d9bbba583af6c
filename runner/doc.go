// Package runner provides the components that drive a FitNesse suite run from
// a pipeline step.
//
// The main components are:
//   - Invoker: launches the runner (HTTP server, jar subprocess or an existing
//     results file) under a hard timeout and returns its raw report
//   - ResultParser: turns the FitNesse XML or JUnit report into a SuiteResult,
//     quarantining pages it cannot read
//   - Aggregate / Verdict: recompute totals and decide pass or fail
//   - StepController: runs invoke, parse, aggregate and publish in sequence and
//     returns a BuildOutcome
package runner
