package game

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/frand"
)

// Connect Four on the standard 7x6 board. Each column occupies seven
// bits of the bitboard (six playable rows plus a guard bit) so that
// four-in-a-row detection works with plain shifts.

const (
	c4Cols = 7
	c4Rows = 6
)

var c4Zobrist [2][c4Cols * c4Rows]uint64

func init() {
	const bignum = 1<<62 - 59
	for p := range c4Zobrist {
		for i := range c4Zobrist[p] {
			c4Zobrist[p][i] = frand.Uint64n(bignum) + 1
		}
	}
}

type ConnectFour struct {
	bits    [2]uint64
	heights [c4Cols]uint8
	moves   int
	key     uint64
}

func NewConnectFour() *ConnectFour {
	return &ConnectFour{}
}

func (c *ConnectFour) Clone() Board {
	cp := *c
	return &cp
}

func (c *ConnectFour) Player() Player {
	return Player(c.moves & 1)
}

func (c *ConnectFour) PolicySize() int {
	return c4Cols
}

func (c *ConnectFour) MoveCount() int {
	return c.moves
}

func (c *ConnectFour) Key() uint64 {
	return c.key
}

func (c *ConnectFour) LegalMoves() []int {
	if _, over := c.Outcome(); over {
		return nil
	}
	moves := make([]int, 0, c4Cols)
	for col := 0; col < c4Cols; col++ {
		if c.heights[col] < c4Rows {
			moves = append(moves, col)
		}
	}
	return moves
}

func (c *ConnectFour) Play(mv int) {
	if mv < 0 || mv >= c4Cols || c.heights[mv] >= c4Rows {
		panic(fmt.Sprintf("illegal move %d", mv))
	}
	p := c.Player()
	row := c.heights[mv]
	c.bits[p] |= 1 << (uint(mv)*7 + uint(row))
	c.key ^= c4Zobrist[p][mv*c4Rows+int(row)]
	c.heights[mv]++
	c.moves++
}

func (c *ConnectFour) Outcome() (Outcome, bool) {
	if c.moves == 0 {
		return Outcome{}, false
	}
	last := c.Player().Other()
	if c4Connected(c.bits[last]) {
		return Win(last), true
	}
	if c.moves == c4Cols*c4Rows {
		return Draw(), true
	}
	return Outcome{}, false
}

// c4Connected reports whether the bitboard contains four in a row in
// any direction: vertical (1), horizontal (7), and both diagonals (6, 8).
func c4Connected(b uint64) bool {
	for _, s := range []uint{1, 7, 6, 8} {
		m := b & (b >> s)
		if m&(m>>(2*s)) != 0 {
			return true
		}
	}
	return false
}

func (c *ConnectFour) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:], c.bits[0])
	binary.LittleEndian.PutUint64(buf[8:], c.bits[1])
	buf[16] = byte(c.moves)
	return buf, nil
}

func (c *ConnectFour) String() string {
	out := make([]byte, 0, (c4Cols+1)*c4Rows)
	for row := c4Rows - 1; row >= 0; row-- {
		for col := 0; col < c4Cols; col++ {
			bit := uint64(1) << (uint(col)*7 + uint(row))
			switch {
			case c.bits[0]&bit != 0:
				out = append(out, 'X')
			case c.bits[1]&bit != 0:
				out = append(out, 'O')
			default:
				out = append(out, '.')
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}
