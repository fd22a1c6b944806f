//go:build js && wasm

package lock

import "os"

// WASM runs single-process; locking is a no-op.
func flockExclusiveNonBlock(f *os.File) error { return nil }

func flockUnlock(f *os.File) error { return nil }
