// Package syncpoll generates the filesystem polling loops that let one
// asynchronously scheduled batch job wait for another.
//
// The batch queue offers no job-dependency primitive, so a downstream script
// blocks on the completion log of its upstream job instead. Every wait is a
// small state machine rendered as POSIX shell:
//
//	WAITING   the log is missing or its last line is not terminal; sleep
//	          for the configured period and look again.
//	FAILED    the last line starts with the error prefix; print a
//	          diagnostic and exit the enclosing script with status 1.
//	SUCCEEDED the last line equals one of the success markers; fall through
//	          to the next wait or to the downstream command text.
//
// There is no timeout. A stuck upstream job stalls the waiting job until an
// operator kills it. Several waits render sequentially, never concurrently,
// so a paired case/control confirmation checks the case log first.
//
// Classify and Inspect evaluate the same state machine in Go so the driver
// can report on logs left behind by a run.
package syncpoll
