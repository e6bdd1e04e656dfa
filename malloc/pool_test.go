package malloc

import "testing"

import "github.com/stretchr/testify/require"

func TestCommonPool(t *testing.T) {
	arena := testarena(2, false)
	defer arena.Release()

	text := []byte("0\n0\n0\n0\n0\n4\n")
	batches, err := parsebatches(text)
	require.NoError(t, err)
	sizes := &SizeClasses{source: "test"}
	copy(sizes.batches[:], batches)

	pool := NewCommonPool(2, sizes)
	fl := &FreeListSet{}
	if c := pool.Refill(fl, 1, 32); c != nil {
		t.Errorf("expected nil, got %v", c)
	}

	_, head, tail, err := Mintchunks(arena, 1, 1, 32, 10)
	require.NoError(t, err)
	fl.Append(5, head, tail, 10)
	pool.Return(fl, 1)
	require.True(t, fl.Empty())
	require.Equal(t, int64(10), pool.Count(1))
	require.Equal(t, int64(0), pool.Count(0))

	// refill moves a batch of 4, one of them handed to caller.
	c := pool.Refill(fl, 1, 32)
	require.Equal(t, head, c)
	require.Equal(t, int64(3), fl.Count(5))
	require.Equal(t, int64(6), pool.Count(1))
	require.NoError(t, pool.Validate())

	c = pool.Refill(fl, 1, 20)
	require.NotNil(t, c)
	c = pool.Refill(fl, 1, 32)
	require.NotNil(t, c)
	require.Equal(t, int64(0), pool.Count(1))
	require.Equal(t, int64(7), fl.Count(5))
	require.Nil(t, pool.Refill(fl, 1, 32))

	stats := pool.Stats()
	require.Equal(t, int64(0), stats["chunks"])
}
