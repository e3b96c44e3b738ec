package store

import "errors"

var (
	// ErrLeadNotFound is returned when a lead id does not resolve to a row.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrAlreadyAssigned is returned when a self-claim races another claim
	// and loses; the caller must re-poll the pool.
	ErrAlreadyAssigned = errors.New("lead already assigned")

	// ErrNotOwner is returned when a mutation requires current ownership.
	ErrNotOwner = errors.New("caller is not the current owner of this lead")

	// ErrUserNotFound is returned when an assignment target does not exist
	// or is inactive.
	ErrUserNotFound = errors.New("user not found or inactive")

	// ErrNoAccountsUser is returned by the manual accounts handoff when no
	// active accounts user exists.
	ErrNoAccountsUser = errors.New("no active accounts user available")

	// ErrAlreadyEnrolled is returned when a lead is already in a class.
	ErrAlreadyEnrolled = errors.New("lead is already enrolled in a class")

	// ErrStudentNotFound is returned when a class/student pair is unknown.
	ErrStudentNotFound = errors.New("student not found in this class")
)
