package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"selfzero/game"
)

func TestValuesFlip(t *testing.T) {
	v := Values{Win: 0.7, Draw: 0.2, Loss: 0.1, MovesLeft: 12}

	t.Run("flip swaps win and loss", func(t *testing.T) {
		f := v.Flip()
		require.Equal(t, Values{Win: 0.1, Draw: 0.2, Loss: 0.7, MovesLeft: 12}, f)
		require.Equal(t, v, f.Flip(), "double flip is the identity")
	})

	t.Run("parent flip adds the extra ply", func(t *testing.T) {
		f := v.ParentFlip()
		require.Equal(t, Values{Win: 0.1, Draw: 0.2, Loss: 0.7, MovesLeft: 13}, f)
	})

	t.Run("value negates under flip", func(t *testing.T) {
		require.InDelta(t, 0.6, v.Value(), 1e-6)
		require.InDelta(t, -0.6, v.Flip().Value(), 1e-6)
	})
}

func TestValuesArithmetic(t *testing.T) {
	a := Values{Win: 1, MovesLeft: 4}
	b := Values{Draw: 1, MovesLeft: 2}

	sum := a.Add(b)
	require.Equal(t, Values{Win: 1, Draw: 1, MovesLeft: 6}, sum)

	avg := sum.Div(2)
	require.Equal(t, Values{Win: 0.5, Draw: 0.5, MovesLeft: 3}, avg)
}

func TestOutcomeValues(t *testing.T) {
	t.Run("draw", func(t *testing.T) {
		v := OutcomeValues(game.Draw(), game.Player(0))
		require.Equal(t, Values{Draw: 1}, v)
	})

	t.Run("win for the point of view player", func(t *testing.T) {
		v := OutcomeValues(game.Win(game.Player(1)), game.Player(1))
		require.Equal(t, Values{Win: 1}, v)
	})

	t.Run("loss for the point of view player", func(t *testing.T) {
		v := OutcomeValues(game.Win(game.Player(1)), game.Player(0))
		require.Equal(t, Values{Loss: 1}, v)
	})
}
