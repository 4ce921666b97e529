package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	t.Parallel()
	st, err := Open(filepath.Join(t.TempDir(), "ensemble.db"))
	require.NoError(t, err)
	defer st.Close()

	row := Row{
		ID:       3,
		Phi:      []complex128{1 + 2i, -0.5, 0, 3.25i},
		Action:   complex(-5.667, 0.125),
		Accepted: true,
	}
	require.NoError(t, st.Put(row))

	got, err := st.Get(3)
	require.NoError(t, err)
	require.Equal(t, row, got)

	_, err = st.Get(99)
	require.Error(t, err)
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()
	st, err := Open(filepath.Join(t.TempDir(), "ensemble.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Put(Row{ID: 0, Phi: []complex128{1}, Accepted: false}))
	require.NoError(t, st.Put(Row{ID: 0, Phi: []complex128{2}, Accepted: true}))

	got, err := st.Get(0)
	require.NoError(t, err)
	require.Equal(t, []complex128{2}, got.Phi)
	require.True(t, got.Accepted)
}

func TestList(t *testing.T) {
	t.Parallel()
	st, err := Open(filepath.Join(t.TempDir(), "ensemble.db"))
	require.NoError(t, err)
	defer st.Close()

	rows := []Row{
		{ID: 0, Phi: []complex128{0.5, -1i}, Action: 1, Accepted: true},
		{ID: 1, Phi: []complex128{2, 3}, Action: -2i, Accepted: false},
		{ID: 2, Phi: []complex128{-0.25 + 0.75i, 0}, Action: 0, Accepted: true},
	}
	// Insert out of order; List returns them sorted by id.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, st.Put(rows[i]))
	}

	got, err := st.List()
	require.NoError(t, err)
	require.Equal(t, rows, got)
}

func TestReopen(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "ensemble.db")

	st, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Put(Row{ID: 7, Phi: []complex128{1i}, Accepted: true}))
	require.NoError(t, st.Close())

	st2, err := Open(dbPath)
	require.NoError(t, err)
	defer st2.Close()
	got, err := st2.Get(7)
	require.NoError(t, err)
	require.Equal(t, []complex128{1i}, got.Phi)
}
