// Package observer drains a child's output streams and tracks its exit in
// the background, populating a taskrecord.Record.
//
// Each cycle sleeps the poll interval, updates the elapsed time, waits at
// most a small fraction of the interval for any stream to become readable,
// reads one chunk of at most ChunkSize bytes from every ready stream, and
// polls the exit status. Reads never wait for more data than is already
// available.
//
// Output written by the child immediately before it exits can be missed:
// once the exit is observed no further reads are attempted, unless
// Configuration.DrainOnExit asks for the streams to be read to end of file
// before the record finishes.
package observer
