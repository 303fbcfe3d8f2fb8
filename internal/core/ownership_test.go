package core

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/testutil"
)

func TestRegistryAcquireAndRelease(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())

	require.NoError(t, r.Acquire("pickup", primitives.Drivetrain, primitives.Intake))
	owner, ok := r.OwnerOf(primitives.Drivetrain)
	require.True(t, ok)
	assert.Equal(t, "pickup", owner)

	// Re-acquiring what you already hold is fine.
	require.NoError(t, r.Acquire("pickup", primitives.Drivetrain))

	r.Release("pickup", primitives.Drivetrain)
	r.Release("pickup", primitives.Drivetrain)
	_, ok = r.OwnerOf(primitives.Drivetrain)
	assert.False(t, ok)
	owner, _ = r.OwnerOf(primitives.Intake)
	assert.Equal(t, "pickup", owner)
}

func TestRegistryConflictIsAllOrNothing(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())
	require.NoError(t, r.Acquire("score", primitives.Shooter))
	before := r.Snapshot()

	err := r.Acquire("pickup", primitives.Drivetrain, primitives.Intake, primitives.Shooter)
	require.Error(t, err)

	var conflict *AcquisitionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, primitives.Shooter, conflict.Resource)
	assert.Equal(t, "score", conflict.Owner)
	assert.Equal(t, "pickup", conflict.Requester)
	assert.Equal(t, before, r.Snapshot(), "failed acquire changed the registry")
}

func TestRegistryReleaseByNonOwnerIsNoop(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())
	require.NoError(t, r.Acquire("climb", primitives.Climber))

	r.Release("pickup", primitives.Climber)
	owner, ok := r.OwnerOf(primitives.Climber)
	require.True(t, ok)
	assert.Equal(t, "climb", owner)
}

func TestRegistryRejectsBadInput(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())
	assert.ErrorIs(t, r.Acquire("", primitives.Intake), ErrInvalidOwner)
	assert.ErrorIs(t, r.Acquire("task", primitives.Intake, "elevator"), ErrUnknownResource)
	assert.Empty(t, r.Snapshot())
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())
	assert.True(t, r.Validate("anyone", primitives.Intake), "unowned resource refused")

	require.NoError(t, r.Acquire("pickup", primitives.Intake))
	assert.True(t, r.Validate("pickup", primitives.Intake))
	assert.False(t, r.Validate("score", primitives.Intake))
}

func TestRegistryReleaseAll(t *testing.T) {
	r := NewRegistry(testutil.QuietLogger())
	require.NoError(t, r.Acquire("pickup", primitives.Intake, primitives.Drivetrain))
	require.NoError(t, r.Acquire("climb", primitives.Climber))

	released := r.ReleaseAll("pickup")
	assert.Equal(t, []primitives.ResourceID{primitives.Drivetrain, primitives.Intake}, released)
	assert.Equal(t, map[primitives.ResourceID]string{primitives.Climber: "climb"}, r.Snapshot())
}

type registryOp struct {
	Acquire   bool
	Owner     string
	Resources []primitives.ResourceID
}

func genRegistryOp() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.OneConstOf("auto", "pickup", "score", "climb"),
		gen.SliceOfN(3, gen.OneConstOf(
			primitives.Drivetrain, primitives.Shooter, primitives.Intake, primitives.Climber,
		)),
	).Map(func(values []interface{}) registryOp {
		return registryOp{
			Acquire:   values[0].(bool),
			Owner:     values[1].(string),
			Resources: values[2].([]primitives.ResourceID),
		}
	})
}

// TestRegistryProperties checks the registry against a model over random
// acquire/release sequences.
// Property: a failed Acquire leaves the snapshot unchanged, a successful
// one grants every requested resource, and no resource ever has two owners.
func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("acquire is all-or-nothing and exclusive", prop.ForAll(
		func(ops []registryOp) bool {
			r := NewRegistry(testutil.QuietLogger())
			for _, op := range ops {
				before := r.Snapshot()
				if !op.Acquire {
					r.Release(op.Owner, op.Resources...)
					for id, owner := range before {
						after, ok := r.OwnerOf(id)
						if owner != op.Owner && (!ok || after != owner) {
							return false // released someone else's resource
						}
					}
					continue
				}

				err := r.Acquire(op.Owner, op.Resources...)
				if err != nil {
					if len(r.Snapshot()) != len(before) {
						return false
					}
					for id, owner := range before {
						if after, _ := r.OwnerOf(id); after != owner {
							return false
						}
					}
					continue
				}
				for _, id := range op.Resources {
					if owner, _ := r.OwnerOf(id); owner != op.Owner {
						return false
					}
					if prev, held := before[id]; held && prev != op.Owner {
						return false // took a resource from another owner
					}
				}
			}
			return true
		},
		gen.SliceOf(genRegistryOp()),
	))

	properties.TestingRun(t)
}
