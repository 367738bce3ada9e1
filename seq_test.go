package lidnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeqAddWraps(t *testing.T) {
	require.Equal(t, Seq(0), Seq(NumSequenceNumbers-1).Add(1))
	require.Equal(t, Seq(NumSequenceNumbers-1), Seq(0).Add(-1))
	require.Equal(t, Seq(5), Seq(NumSequenceNumbers-3).Add(8))
}

func TestRelativeSeqOrdering(t *testing.T) {
	require.EqualValues(t, 1, RelativeSeq(Seq(1), Seq(0)))
	require.EqualValues(t, -1, RelativeSeq(Seq(0), Seq(1)))
	require.EqualValues(t, 0, RelativeSeq(Seq(42), Seq(42)))
}

func TestRelativeSeqWrapAround(t *testing.T) {
	a := Seq(0)
	b := Seq(NumSequenceNumbers - 1)
	require.EqualValues(t, 1, RelativeSeq(a, b), "0 is one step ahead of N-1")
	require.EqualValues(t, -1, RelativeSeq(b, a))
}

func TestRelativeSeqHalfwayBoundary(t *testing.T) {
	half := Seq(NumSequenceNumbers / 2)
	require.EqualValues(t, -NumSequenceNumbers/2, RelativeSeq(half, 0))
}

func TestSeqDistanceForward(t *testing.T) {
	require.Equal(t, 0, seqDistanceForward(Seq(5), Seq(5)))
	require.Equal(t, 1, seqDistanceForward(Seq(0), Seq(NumSequenceNumbers-1)))
	require.Equal(t, NumSequenceNumbers-1, seqDistanceForward(Seq(NumSequenceNumbers-1), Seq(0)))
}

func TestSeqIndex(t *testing.T) {
	require.Equal(t, 0, Seq(32).index(32))
	require.Equal(t, 5, Seq(5).index(32))
	require.Equal(t, 3, Seq(NumSequenceNumbers+3).index(32))
}
