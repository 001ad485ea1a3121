package p2p

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid returns the current goroutine's ID, parsed from the stack header
// "goroutine 123 [running]:". It is only used to tell whether Close runs
// on the dispatcher goroutine.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
