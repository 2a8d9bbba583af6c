//go:build !unix

package runner

import "os/exec"

// configureProcessGroup keeps the default cancellation, which kills the
// runner process itself.
func configureProcessGroup(cmd *exec.Cmd) {}
