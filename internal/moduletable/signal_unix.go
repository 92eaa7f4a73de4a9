//go:build !windows

package moduletable

import (
	"os"
	"syscall"
)

func syscallSignalZero() os.Signal { return syscall.Signal(0) }
