package core

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/primitives"
)

// Registry maps each ownable resource to the task currently holding it.
//
// It is created once per process and handed to every task and façade. All
// mutation happens from tick, start or cancel code on the scheduler
// goroutine, so it carries no lock.
type Registry struct {
	owners map[primitives.ResourceID]string
	log    logrus.FieldLogger
}

// NewRegistry creates an empty registry. A nil logger uses the logrus
// standard logger.
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		owners: make(map[primitives.ResourceID]string),
		log:    log.WithField("component", "ownership"),
	}
}

// Acquire grants owner every resource in ids, or none of them. It succeeds
// only if each resource is unowned or already held by owner; otherwise it
// returns an *AcquisitionConflictError naming the first conflict and leaves
// the registry untouched.
func (r *Registry) Acquire(owner string, ids ...primitives.ResourceID) error {
	if owner == "" {
		return ErrInvalidOwner
	}
	for _, id := range ids {
		if !id.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownResource, id)
		}
		if cur, ok := r.owners[id]; ok && cur != owner {
			return &AcquisitionConflictError{Requester: owner, Resource: id, Owner: cur}
		}
	}
	for _, id := range ids {
		r.owners[id] = owner
	}
	if len(ids) > 0 {
		r.log.WithFields(logrus.Fields{"owner": owner, "resources": ids}).Debug("Acquired ownership")
	}
	return nil
}

// Release clears ownership of every resource in ids that owner holds.
// Resources held by someone else, or by nobody, are left alone.
func (r *Registry) Release(owner string, ids ...primitives.ResourceID) {
	for _, id := range ids {
		if cur, ok := r.owners[id]; ok && cur == owner {
			delete(r.owners, id)
		}
	}
}

// ReleaseAll clears every resource owner holds and returns them.
func (r *Registry) ReleaseAll(owner string) []primitives.ResourceID {
	var released []primitives.ResourceID
	for id, cur := range r.owners {
		if cur == owner {
			released = append(released, id)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
	r.Release(owner, released...)
	if len(released) > 0 {
		r.log.WithFields(logrus.Fields{"owner": owner, "resources": released}).Debug("Released ownership")
	}
	return released
}

// OwnerOf returns the task holding id.
func (r *Registry) OwnerOf(id primitives.ResourceID) (string, bool) {
	owner, ok := r.owners[id]
	return owner, ok
}

// Validate reports whether owner may command id: the resource is unowned or
// owned by owner.
func (r *Registry) Validate(owner string, id primitives.ResourceID) bool {
	cur, ok := r.owners[id]
	return !ok || cur == owner
}

// Snapshot returns a copy of the ownership map.
func (r *Registry) Snapshot() map[primitives.ResourceID]string {
	snap := make(map[primitives.ResourceID]string, len(r.owners))
	for id, owner := range r.owners {
		snap[id] = owner
	}
	return snap
}
