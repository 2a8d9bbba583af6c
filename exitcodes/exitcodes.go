// Package exitcodes defines the exit codes fitgate reports to the build.
package exitcodes

// Exit code constants used by fitgate:
//
// * Success (0): every suite passed
// * TestFailure (1): at least one suite failed its assertions
// * RuntimeErr (2): a suite could not be run, parsed or published
const (
	Success     = 0 // All suites pass
	TestFailure = 1 // Assertion failures
	RuntimeErr  = 2 // Runner, parse or aggregation errors
)
