package robopoint

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Class partitions errors into those caused by the caller's data and those
// caused by the system.
type Class int

const (
	// ClassNone means no error was observed.
	ClassNone Class = iota
	// ClassUser errors are safe to describe to the caller.
	ClassUser
	// ClassCritical errors are logged and reported as an opaque system error.
	ClassCritical
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassUser:
		return "user"
	case ClassCritical:
		return "critical"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Worse returns the more severe of the two classes. Critical always wins.
func (c Class) Worse(o Class) Class {
	if o > c {
		return o
	}
	return c
}

// Classify maps an error to its class. Only invalid message data is a user
// error; every other cause, including unknown ones, is critical.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	switch e := errors.Cause(err).(type) {
	case *InvalidMessageDataError:
		return ClassUser
	case *ReadError:
		return e.Class
	default:
		return ClassCritical
	}
}

// RecoveryReadError is returned when checkpoint storage exists but cannot be read.
type RecoveryReadError struct {
	Location string
	Err      error
}

func (e *RecoveryReadError) Error() string {
	return fmt.Sprintf("error reading consumer recovery data at %s: %v", e.Location, e.Err)
}

// RecoveryWriteError is returned when a checkpoint document could not be committed.
type RecoveryWriteError struct {
	Location string
	Err      error
}

func (e *RecoveryWriteError) Error() string {
	return fmt.Sprintf("error writing consumer recovery data at %s: %v", e.Location, e.Err)
}

// ShardInitiationError is returned when the shard topology of a stream could
// not be resolved or a shard iterator could not be obtained.
type ShardInitiationError struct {
	Stream  string
	ShardID string
	Err     error
}

func (e *ShardInitiationError) Error() string {
	if e.ShardID == "" {
		return fmt.Sprintf("could not initiate shards of stream %q: %v", e.Stream, e.Err)
	}
	return fmt.Sprintf("could not initiate shard %s of stream %q: %v", e.ShardID, e.Stream, e.Err)
}

// InvalidMessageDataError describes message data that failed validation.
// Entry is the 1-based position of the offending payload in a batch, 0 when
// the data was not part of a batch.
type InvalidMessageDataError struct {
	Entry  int
	Reason string
	Err    error
}

func (e *InvalidMessageDataError) Error() string {
	var b strings.Builder
	b.WriteString("invalid message data")
	if e.Entry > 0 {
		fmt.Fprintf(&b, " in entry %d", e.Entry)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// ReadError is the outcome of a failed read. Class is critical whenever any
// critical error occurred, even if user errors occurred alongside it.
type ReadError struct {
	Class Class
	Errs  []error
}

func (e *ReadError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s error reading messages: %s", e.Class, strings.Join(msgs, "; "))
}
