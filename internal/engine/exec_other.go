//go:build !unix

package engine

import "os/exec"

// killProcessGroupOnCancel keeps the exec default of killing the direct
// child; WaitDelay still bounds the wait on inherited pipes.
func killProcessGroupOnCancel(*exec.Cmd) {}
