// Package mcserr defines the closed error-kind taxonomy that every
// RPC handler in this repository surfaces to callers.
package mcserr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the error categories an RPC handler can produce.
type Kind string

const (
	KindUnreadMailBlocked Kind = "unread_mail_blocked"
	KindAuthRejected      Kind = "auth_rejected"
	KindAmbiguousRecipient Kind = "ambiguous_recipient"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidKind       Kind = "invalid_kind"
	KindNoActiveMinion    Kind = "no_active_minion"
	KindStoreFailure      Kind = "store_failure"
)

// Error is a classified failure with a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func new_(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies an underlying error as a store failure, preserving the
// chain. An error that already carries a Kind keeps that Kind.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	kind := KindStoreFailure
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("%s failed", op), Err: err}
}

func UnreadMailBlocked(count int, senders []string) *Error {
	return new_(KindUnreadMailBlocked, fmt.Sprintf("BLOCKED: You have %d unread message(s) from %s. Call check_inbox first.", count, strings.Join(senders, ", ")))
}

func AuthRejected() *Error {
	return new_(KindAuthRejected, "room token mismatch")
}

func AmbiguousRecipient(name string) *Error {
	return new_(KindAmbiguousRecipient, fmt.Sprintf("recipient %q is ambiguous across multiple teams", name))
}

func NotFound(what string) *Error {
	return new_(KindNotFound, fmt.Sprintf("%s not found", what))
}

func InvalidTransition(from, to string, validNext []string) *Error {
	return new_(KindInvalidTransition, fmt.Sprintf("cannot transition from %s to %s; valid next states: %v", from, to, validNext))
}

func Unauthorized(action string) *Error {
	return new_(KindUnauthorized, fmt.Sprintf("not authorized to %s", action))
}

func InvalidKind(kind string) *Error {
	return new_(KindInvalidKind, fmt.Sprintf("invalid contract kind %q", kind))
}

func NoActiveMinion(pilot string) *Error {
	return new_(KindNoActiveMinion, fmt.Sprintf("no active minion for pilot %q", pilot))
}

// KindOf extracts the Kind from err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Display renders err the way RPC handlers return it to callers: the
// unread gate keeps its own sentinel-style text, everything else gets
// an "Error: " prefix (spec §7).
func Display(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUnreadMailBlocked {
			return e.Message
		}
		return "Error: " + e.Message
	}
	return "Error: " + err.Error()
}
