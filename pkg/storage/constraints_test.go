package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueConstraintBlocksDuplicates(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintUnique, "Person", "email", "")
	require.NoError(t, err)

	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	require.NoError(t, err)

	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintUnique, cv.Kind)

	// nulls never violate uniqueness; other labels are unaffected
	_, err = s.CreateNode([]string{"Person"}, nil)
	assert.NoError(t, err)
	_, err = s.CreateNode([]string{"Company"}, map[string]any{"email": "a@x"})
	assert.NoError(t, err)
}

func TestUniqueConstraintFollowsUpdatesAndDeletes(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintUnique, "Person", "email", "")
	require.NoError(t, err)

	a, _ := s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})

	// same node may keep its value
	_, err = s.UpdateNodeProperties(a.ID, map[string]any{"email": "a@x", "n": 1}, UpdateMerge)
	assert.NoError(t, err)

	// freeing the value by update releases the slot
	_, err = s.UpdateNodeProperties(a.ID, map[string]any{"email": "b@x"}, UpdateMerge)
	require.NoError(t, err)
	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	assert.NoError(t, err)

	// deleting a node releases its value
	require.NoError(t, s.DeleteNode(a.ID, true))
	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "b@x"})
	assert.NoError(t, err)
}

func TestUniqueConstraintCreationValidatesExistingData(t *testing.T) {
	s := openTestStore(t)
	s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})

	_, err := s.CreateConstraint(ConstraintUnique, "Person", "email", "")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)

	// the failed creation must not leave the constraint behind
	cs, err := s.ListConstraints()
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestExistsConstraint(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintExists, "Person", "name", "")
	require.NoError(t, err)

	_, err = s.CreateNode([]string{"Person"}, nil)
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintExists, cv.Kind)

	n, err := s.CreateNode([]string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	_, err = s.UpdateNodeProperties(n.ID, map[string]any{"name": nil}, UpdateMerge)
	assert.ErrorAs(t, err, &cv)
}

func TestTypeConstraint(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintType, "Person", "age", "int")
	require.NoError(t, err)

	_, err = s.CreateNode([]string{"Person"}, map[string]any{"age": "thirty"})
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, ConstraintType, cv.Kind)

	_, err = s.CreateNode([]string{"Person"}, map[string]any{"age": 30})
	assert.NoError(t, err)
	// absent property is fine under a type constraint
	_, err = s.CreateNode([]string{"Person"}, nil)
	assert.NoError(t, err)
}

func TestConstraintAppliesOnLabelAdd(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintExists, "Person", "name", "")
	require.NoError(t, err)

	n, err := s.CreateNode([]string{"Thing"}, nil)
	require.NoError(t, err)

	_, err = s.AddLabels(n.ID, []string{"Person"})
	var cv *ConstraintViolationError
	assert.ErrorAs(t, err, &cv)
}

func TestDropConstraint(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateConstraint(ConstraintUnique, "Person", "email", "")
	require.NoError(t, err)
	require.NoError(t, s.DropConstraint(ConstraintUnique, "Person", "email"))
	assert.ErrorIs(t, s.DropConstraint(ConstraintUnique, "Person", "email"), ErrNotFound)

	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	require.NoError(t, err)
	_, err = s.CreateNode([]string{"Person"}, map[string]any{"email": "a@x"})
	assert.NoError(t, err)
}
