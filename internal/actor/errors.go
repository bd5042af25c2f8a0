package actor

import (
	"errors"
	"fmt"
)

// ErrMailboxFull reports transient back-pressure: the entity's mailbox stayed full
// for the whole enqueue timeout.
var ErrMailboxFull = errors.New("entity mailbox full")

// ErrDirectoryClosed reports that the directory has been closed and accepts no further work.
var ErrDirectoryClosed = errors.New("entity directory closed")

// MailboxFullError carries diagnostics while satisfying errors.Is(_, ErrMailboxFull).
type MailboxFullError struct {
	Key      string
	Length   int // mailbox length at timeout
	Capacity int // cap(mailbox)
}

func (e *MailboxFullError) Error() string {
	return fmt.Sprintf("mailbox for %q full (len=%d cap=%d)", e.Key, e.Length, e.Capacity)
}

func (e *MailboxFullError) Is(target error) bool { return target == ErrMailboxFull }
