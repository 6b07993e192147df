package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdxRange(t *testing.T) {
	t.Run("empty range", func(t *testing.T) {
		r := IdxRange{Start: 5, End: 5}
		require.True(t, r.Empty())
		require.Equal(t, 0, r.Len())
	})

	t.Run("indexing", func(t *testing.T) {
		r := IdxRange{Start: 3, End: 7}
		require.Equal(t, 4, r.Len())
		require.Equal(t, 3, r.Get(0))
		require.Equal(t, 6, r.Get(3))
	})

	t.Run("out of range panics", func(t *testing.T) {
		r := IdxRange{Start: 3, End: 7}
		require.Panics(t, func() { r.Get(4) })
		require.Panics(t, func() { r.Get(-1) })
	})
}

func TestFpuMode(t *testing.T) {
	t.Run("parent passes the baseline through", func(t *testing.T) {
		require.Equal(t, float32(0.4), FpuParent.Select(0.4))
	})

	t.Run("relative subtracts the offset", func(t *testing.T) {
		require.InDelta(t, 0.1, FpuRelative(0.3).Select(0.4), 1e-6)
	})

	t.Run("fixed ignores the baseline", func(t *testing.T) {
		require.Equal(t, float32(-1), FpuFixed(-1).Select(0.4))
	})
}

func TestParseFpuMode(t *testing.T) {
	cases := []struct {
		kind   string
		offset float32
		want   FpuMode
	}{
		{"", 0.5, FpuParent},
		{"parent", 0.5, FpuParent},
		{"relative", 0.5, FpuRelative(0.5)},
		{"fixed", -1, FpuFixed(-1)},
	}
	for _, c := range cases {
		got, err := ParseFpuMode(c.kind, c.offset)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}

	_, err := ParseFpuMode("bogus", 0)
	require.Error(t, err)
}

func TestUct(t *testing.T) {
	w := UctWeights{Exploration: 2.0}

	t.Run("unvisited child scores with the fpu value", func(t *testing.T) {
		n := newNode(0, 3, 0.5)
		// q = fpu, u = policy * sqrt(parentVisits) / 1
		got := n.uct(16, -0.25, 0, w)
		require.InDelta(t, -0.25+2.0*0.5*4.0, got, 1e-6)
	})

	t.Run("visited child scores with its average value", func(t *testing.T) {
		n := newNode(0, 3, 0.5)
		n.Visits = 4
		n.SumValues = Values{Win: 3, Loss: 1}
		got := n.uct(16, -0.25, 0, w)
		require.InDelta(t, 0.5+2.0*0.5*4.0/5.0, got, 1e-6)
	})

	t.Run("higher prior wins at equal stats", func(t *testing.T) {
		lo := newNode(0, 1, 0.2)
		hi := newNode(0, 2, 0.6)
		require.Greater(t, hi.uct(9, 0, 0, w), lo.uct(9, 0, 0, w))
	})

	t.Run("moves left term prefers shorter wins", func(t *testing.T) {
		ml := UctWeights{Exploration: 2.0, MovesLeft: 0.5, MovesLeftSharpness: 0.5}

		short := newNode(0, 1, 0.5)
		short.Visits = 2
		short.SumValues = Values{Win: 2, MovesLeft: 4}
		long := newNode(0, 2, 0.5)
		long.Visits = 2
		long.SumValues = Values{Win: 2, MovesLeft: 40}

		// Both children are winning; the one ending sooner scores higher.
		require.Greater(t, short.uct(10, 0, 10, ml), long.uct(10, 0, 10, ml))
	})

	t.Run("moves left term prefers longer losses", func(t *testing.T) {
		ml := UctWeights{Exploration: 2.0, MovesLeft: 0.5, MovesLeftSharpness: 0.5}

		short := newNode(0, 1, 0.5)
		short.Visits = 2
		short.SumValues = Values{Loss: 2, MovesLeft: 4}
		long := newNode(0, 2, 0.5)
		long.Visits = 2
		long.SumValues = Values{Loss: 2, MovesLeft: 40}

		require.Greater(t, long.uct(10, 0, 10, ml), short.uct(10, 0, 10, ml))
	})
}

func TestNodeValues(t *testing.T) {
	n := newNode(-1, -1, 1)
	require.Panics(t, func() { n.values() }, "average of zero visits is undefined")

	n.Visits = 2
	n.SumValues = Values{Win: 1, Draw: 1, MovesLeft: 8}
	require.Equal(t, Values{Win: 0.5, Draw: 0.5, MovesLeft: 4}, n.values())
}
