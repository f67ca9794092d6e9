// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrCapabilityMismatch indicates a request matched no known specialist
// capability. It is a routing condition, not a failure: the caller should
// ask the user to clarify.
var ErrCapabilityMismatch = errors.New("no specialist capability matches the request")

// ErrInvalidTransition indicates an attempt to move a task out of a
// terminal state. This is an invariant violation and is always rejected.
var ErrInvalidTransition = errors.New("invalid task state transition")

// ErrDelegationDepth indicates a specialist requested delegated context
// beyond the permitted depth. The request proceeds without the context.
var ErrDelegationDepth = errors.New("delegation depth exceeded")

// ErrAllUnavailable indicates every specialist matched to a request was
// unavailable, leaving nothing to answer with.
var ErrAllUnavailable = errors.New("all matched specialists unavailable")
