package coordinator

import (
	"errors"
	"fmt"

	"github.com/maxpert/topology/common"
)

var (
	// ErrOutsideNamespace is returned for mutations that do not touch the configuration namespace
	ErrOutsideNamespace = errors.New("coordinator: mutation outside configuration namespace")

	// ErrNotRecovered is returned by Apply before Recover has completed, and again after a
	// PersistError until Recover runs
	ErrNotRecovered = errors.New("coordinator: not recovered")
)

// MutationRejectedError reports the mutation that failed validation. Nothing in its batch was
// applied.
type MutationRejectedError struct {
	Index    int
	Mutation common.Mutation
	Err      error
}

func (e *MutationRejectedError) Error() string {
	return fmt.Sprintf("mutation %d (%s) rejected: %v", e.Index, e.Mutation.Type, e.Err)
}

func (e *MutationRejectedError) Unwrap() error {
	return e.Err
}

// PersistError represents a failure to persist a mutation that passed validation. Mutations
// before Applied in the batch are durable and visible; the rest were not applied.
type PersistError struct {
	Applied int
	Version uint64
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist failed at version %d after %d applied mutations: %v", e.Version, e.Applied, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
