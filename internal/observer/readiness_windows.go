//go:build windows

package observer

import (
	"errors"
	"time"

	"golang.org/x/sys/windows"

	"github.com/temirov/procwatch/internal/handle"
)

const peekRetryIntervalConstant = time.Millisecond

// readyStreams peeks each pipe until one has data or the timeout passes.
// A broken pipe counts as readable so the next read reports end of file.
func readyStreams(streams []handle.Stream, timeout time.Duration) ([]int, error) {
	deadline := time.Now().Add(timeout)
	for {
		var readyIndexes []int
		for streamIndex, stream := range streams {
			var availableBytes uint32
			peekError := windows.PeekNamedPipe(windows.Handle(stream.Fd()), nil, 0, nil, &availableBytes, nil)
			if peekError != nil {
				if errors.Is(peekError, windows.ERROR_BROKEN_PIPE) {
					readyIndexes = append(readyIndexes, streamIndex)
					continue
				}
				return nil, peekError
			}
			if availableBytes > 0 {
				readyIndexes = append(readyIndexes, streamIndex)
			}
		}

		if len(readyIndexes) > 0 || !time.Now().Before(deadline) {
			return readyIndexes, nil
		}
		time.Sleep(peekRetryIntervalConstant)
	}
}
