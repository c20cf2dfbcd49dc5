package session

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskPanicError is returned by Task.Wait when the workflow or one of its
// decode tasks panicked.
type TaskPanicError struct {
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("session: task panicked: %v", e.Value)
}

// Task is a handle on a running transmit or listen workflow.
type Task struct {
	id   string
	role Role
	done chan struct{}
	err  error

	rx       receiveCounters
	transmit TransmitStats
}

func newTask(role Role) *Task {
	return &Task{
		id:   uuid.NewString(),
		role: role,
		done: make(chan struct{}),
	}
}

// ID returns the operation ID used in logs and reports.
func (t *Task) ID() string { return t.id }

// Role returns the role the task holds while it runs.
func (t *Task) Role() Role { return t.role }

// Done is closed when the workflow has finished and the session role has
// been reset.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the workflow finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Err returns the workflow error, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// ReceiveStats returns the receive counters. It may be called while a
// listen task is running.
func (t *Task) ReceiveStats() ReceiveStats { return t.rx.snapshot() }

// TransmitStats returns what a transmit task sent. It is zero until Done.
func (t *Task) TransmitStats() TransmitStats {
	select {
	case <-t.done:
		return t.transmit
	default:
		return TransmitStats{}
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}
