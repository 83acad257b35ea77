package utils

import (
	"io"
	"sync"
)

type flushableWriter interface {
	Flush() error
}

type syncableWriter interface {
	Sync() error
}

// FlushingSyncer serializes log writes, flushes buffered destinations after
// every entry and satisfies zapcore.WriteSyncer so logger.Sync reaches the
// underlying writer.
type FlushingSyncer struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFlushingSyncer wraps writer. A nil writer yields nil and an existing
// FlushingSyncer is returned unchanged.
func NewFlushingSyncer(writer io.Writer) *FlushingSyncer {
	if writer == nil {
		return nil
	}
	if existingSyncer, alreadyWrapped := writer.(*FlushingSyncer); alreadyWrapped {
		return existingSyncer
	}
	return &FlushingSyncer{writer: writer}
}

// Write forwards data and flushes the destination when it buffers.
func (flushingSyncer *FlushingSyncer) Write(data []byte) (int, error) {
	if flushingSyncer == nil || flushingSyncer.writer == nil {
		return 0, nil
	}

	flushingSyncer.mutex.Lock()
	defer flushingSyncer.mutex.Unlock()

	bytesWritten, writeError := flushingSyncer.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	return bytesWritten, flushingSyncer.flushLocked()
}

// Sync flushes buffered data and syncs destinations such as *os.File.
func (flushingSyncer *FlushingSyncer) Sync() error {
	if flushingSyncer == nil || flushingSyncer.writer == nil {
		return nil
	}

	flushingSyncer.mutex.Lock()
	defer flushingSyncer.mutex.Unlock()

	if flushError := flushingSyncer.flushLocked(); flushError != nil {
		return flushError
	}
	if destination, implementsSync := flushingSyncer.writer.(syncableWriter); implementsSync {
		return destination.Sync()
	}
	return nil
}

func (flushingSyncer *FlushingSyncer) flushLocked() error {
	if destination, implementsFlush := flushingSyncer.writer.(flushableWriter); implementsFlush {
		return destination.Flush()
	}
	return nil
}
