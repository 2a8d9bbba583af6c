package runner

import "time"

const (
	// DefaultTimeoutSeconds bounds a suite run when neither the suites file
	// nor the flags set one.
	DefaultTimeoutSeconds = 600

	// DefaultJavaBinary is used to launch a FitNesse jar.
	DefaultJavaBinary = "java"

	// DefaultRetryDelay is the pause before retrying a dropped connection.
	DefaultRetryDelay = 2 * time.Second

	// MaxInvokeRetries is the number of extra invocation attempts made after
	// a NetworkError.
	MaxInvokeRetries = 1

	// FitNesse responder arguments
	SuiteResponder = "suite"
	TestResponder  = "test"
	FormatXML      = "format=xml"
	IncludeHTML    = "includehtml"

	// FitNesse command line arguments
	JarFlag       = "-jar"
	RootDirFlag   = "-d"
	PortFlag      = "-p"
	OmitUpdates   = "-o"
	CommandFlag   = "-c"
	EndpointHTTP  = "http"
	EndpointHTTPS = "https"
	EndpointFile  = "file"
	EndpointExec  = "exec"

	// processWaitDelay bounds how long Wait blocks on stdio after the runner
	// process has been killed.
	processWaitDelay = 5 * time.Second

	// maxMessageRunes caps assertion messages taken from report cells.
	maxMessageRunes = 1024

	// maxPageAssertions caps the counts a single page may claim.
	maxPageAssertions = 1_000_000
)
