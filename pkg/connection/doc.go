// Package connection provides the reopen policy for the virtual serial
// transport: exponential backoff between attempts with an optional overall
// retry deadline.
package connection
