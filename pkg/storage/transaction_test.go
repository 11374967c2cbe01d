package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxCommitPublishesWrites(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)

	n, err := tx.CreateNode([]string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)

	// read-your-writes inside the transaction
	got, err := tx.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Properties["name"])

	require.NoError(t, tx.Commit())

	got, err = s.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Properties["name"])
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	n, err := tx.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.GetNode(n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	labels, err := s.AllLabels()
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestTxUseAfterFinish(t *testing.T) {
	s := openTestStore(t)
	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
	_, err = tx.CreateNode(nil, nil)
	assert.ErrorIs(t, err, ErrTxDone)
}

func TestWithTxCommitsOnNil(t *testing.T) {
	s := openTestStore(t)
	var id int64
	err := s.WithTx(func(tx *Tx) error {
		n, err := tx.CreateNode([]string{"Person"}, nil)
		if err != nil {
			return err
		}
		id = n.ID
		return nil
	})
	require.NoError(t, err)
	_, err = s.GetNode(id)
	assert.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	sentinel := errors.New("boom")
	var id int64
	err := s.WithTx(func(tx *Tx) error {
		n, err := tx.CreateNode([]string{"Person"}, nil)
		if err != nil {
			return err
		}
		id = n.ID
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	_, err = s.GetNode(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := openTestStore(t)
	var id int64
	assert.Panics(t, func() {
		s.WithTx(func(tx *Tx) error {
			n, _ := tx.CreateNode([]string{"Person"}, nil)
			id = n.ID
			panic("boom")
		})
	})
	_, err := s.GetNode(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// the writer lock must have been released
	_, err = s.CreateNode(nil, nil)
	assert.NoError(t, err)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.CreateNode(nil, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}
