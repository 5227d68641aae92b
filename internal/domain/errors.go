// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition indicates an operation was attempted against an entity
// that is not in a state permitting it (e.g. executing a terminal decision).
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrUnauthorized indicates the caller's role does not permit the operation.
var ErrUnauthorized = errors.New("not authorized")

// ErrDependencyMissing indicates a component was constructed without a
// component it depends on.
var ErrDependencyMissing = errors.New("required component not initialized")

// ErrWorkflowActive indicates a decision already has an active workflow
// execution bound to it.
var ErrWorkflowActive = errors.New("decision already has an active workflow")
