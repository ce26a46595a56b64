package notify

import (
	"context"
	"errors"
)

// ErrUnknownTransaction is returned for ids the center does not track
var ErrUnknownTransaction = errors.New("unknown transaction")

// ErrClosed is returned by Submit once the center is closed
var ErrClosed = errors.New("notification center closed")

// NotificationType is the severity of a notification
type NotificationType string

const (
	TypeProgress NotificationType = "progress"
	TypeSuccess  NotificationType = "success"
	TypeError    NotificationType = "error"
)

// Notification is emitted on every transaction state change
type Notification struct {
	ID string `json:"id"`
	// Timestamp in epoch milliseconds
	Timestamp int64            `json:"timestamp"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	// Toast notifications are shown briefly, the others go to the notification list
	Toast bool `json:"toast"`
}

// Messages are the texts shown for each outcome of a transaction
type Messages struct {
	Processing string `json:"processing"`
	Success    string `json:"success"`
	Failure    string `json:"failure"`
}

// State of a tracked transaction
type State string

const (
	StateSubmitted       State = "submitted"
	StateBroadcast       State = "broadcast"
	StateIncludedSuccess State = "included_success"
	StateIncludedFailure State = "included_failure"
	StateError           State = "error"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateIncludedSuccess || s == StateIncludedFailure || s == StateError
}

// StatusKind tells what a submitter observed
type StatusKind int

const (
	StatusBroadcast StatusKind = iota
	StatusInBlock
	StatusError
)

// Status is a single update from a Submitter
type Status struct {
	Kind   StatusKind
	TxHash string
	// Height of the including block, set for StatusInBlock
	Height int64
	// Failed marks an included transaction whose execution failed
	Failed bool
	Err    error
}

// Submitter hands a signed transaction to the chain and reports its progress.
// The returned channel is closed once the transaction reached a final status.
type Submitter interface {
	Submit(ctx context.Context, txBytes []byte) (<-chan Status, error)
}
