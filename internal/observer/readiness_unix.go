//go:build unix

package observer

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/temirov/procwatch/internal/handle"
)

const invalidDescriptorTemplateConstant = "stream descriptor %d is not open"

// readyStreams waits up to timeout for any stream to become readable and
// returns the indexes of the readable ones. End of file counts as readable.
func readyStreams(streams []handle.Stream, timeout time.Duration) ([]int, error) {
	pollDescriptors := make([]unix.PollFd, len(streams))
	for streamIndex, stream := range streams {
		pollDescriptors[streamIndex] = unix.PollFd{Fd: int32(stream.Fd()), Events: unix.POLLIN}
	}

	timeoutMilliseconds := int(timeout / time.Millisecond)
	if timeoutMilliseconds < 1 {
		timeoutMilliseconds = 1
	}

	readyCount, pollError := unix.Poll(pollDescriptors, timeoutMilliseconds)
	if pollError != nil {
		if errors.Is(pollError, unix.EINTR) {
			return nil, nil
		}
		return nil, pollError
	}
	if readyCount == 0 {
		return nil, nil
	}

	readyIndexes := make([]int, 0, readyCount)
	for descriptorIndex, pollDescriptor := range pollDescriptors {
		if pollDescriptor.Revents&unix.POLLNVAL != 0 {
			return nil, fmt.Errorf(invalidDescriptorTemplateConstant, pollDescriptor.Fd)
		}
		if pollDescriptor.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			readyIndexes = append(readyIndexes, descriptorIndex)
		}
	}
	return readyIndexes, nil
}
