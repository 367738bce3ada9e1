package lidnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFragmenterSplitEvenChunks(t *testing.T) {
	f := &fragmenter{}
	data := make([]byte, 30)
	for i := range data {
		data[i] = byte(i)
	}

	groupID, chunks := f.split(data, 10)
	require.EqualValues(t, 0, groupID)
	require.Len(t, chunks, 3)
	require.Equal(t, data[0:10], chunks[0])
	require.Equal(t, data[20:30], chunks[2])
}

func TestFragmenterSplitUnevenRemainder(t *testing.T) {
	f := &fragmenter{}
	data := make([]byte, 25)
	_, chunks := f.split(data, 10)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[2], 5)
}

func TestFragmenterSplitIncrementsGroupID(t *testing.T) {
	f := &fragmenter{}
	g1, _ := f.split([]byte("a"), 4)
	g2, _ := f.split([]byte("b"), 4)
	require.Equal(t, uint32(0), g1)
	require.Equal(t, uint32(1), g2)
}

func TestFragmentAssemblerReassemblesInOrder(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()

	payload, ok := a.addChunk(now, 1, 72, 3, 0, []byte{1, 2, 3})
	require.False(t, ok)
	require.Nil(t, payload)

	payload, ok = a.addChunk(now, 1, 72, 3, 1, []byte{4, 5, 6})
	require.False(t, ok)

	payload, ok = a.addChunk(now, 1, 72, 3, 2, []byte{7, 8, 9})
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, payload)
}

func TestFragmentAssemblerReassemblesOutOfOrder(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()

	a.addChunk(now, 2, 72, 3, 2, []byte{7, 8, 9})
	a.addChunk(now, 2, 72, 3, 0, []byte{1, 2, 3})
	payload, ok := a.addChunk(now, 2, 72, 3, 1, []byte{4, 5, 6})

	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, payload)
}

func TestFragmentAssemblerDuplicateChunkIgnored(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()

	a.addChunk(now, 3, 48, 2, 0, []byte{1, 2, 3})
	a.addChunk(now, 3, 48, 2, 0, []byte{9, 9, 9}) // duplicate chunk 0, should not overwrite
	payload, ok := a.addChunk(now, 3, 48, 2, 1, []byte{4, 5, 6})

	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, payload)
}

func TestFragmentAssemblerTruncatesTrailingPadding(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()

	// totalBits asks for 20 bits (3 bytes, last byte partially used), but
	// chunk framing works in whole bytes.
	payload, ok := a.addChunk(now, 4, 20, 1, 0, []byte{0xaa, 0xbb, 0xcc})
	require.True(t, ok)
	require.Len(t, payload, 3)
}

func TestFragmentAssemblerEvictsOldestWhenOverCapacity(t *testing.T) {
	a := newFragmentAssembler(2)
	t0 := time.Now()

	a.addChunk(t0, 10, 8, 2, 0, []byte{1})
	a.addChunk(t0.Add(time.Millisecond), 11, 8, 2, 0, []byte{2})
	a.addChunk(t0.Add(2*time.Millisecond), 12, 8, 2, 0, []byte{3})

	require.Len(t, a.groups, 2, "oldest in-progress group must be evicted once over capacity")
	_, stillThere := a.groups[10]
	require.False(t, stillThere, "group 10 was the oldest and should have been evicted")

	// The surviving groups can still complete normally.
	_, ok := a.addChunk(t0.Add(2*time.Millisecond), 12, 8, 2, 1, []byte{4})
	require.True(t, ok)
}

func TestFragmentAssemblerRejectsMismatchedChunkCount(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()

	a.addChunk(now, 20, 16, 2, 0, []byte{1, 2})
	payload, ok := a.addChunk(now, 20, 16, 3, 1, []byte{3, 4})
	require.False(t, ok)
	require.Nil(t, payload)
}

func TestFragmentAssemblerResetDropsInProgressGroups(t *testing.T) {
	a := newFragmentAssembler(64)
	now := time.Now()
	a.addChunk(now, 30, 16, 2, 0, []byte{1, 2})
	require.Len(t, a.groups, 1)

	a.reset()
	require.Empty(t, a.groups)

	// A chunk for the reset group id starts fresh rather than completing.
	_, ok := a.addChunk(now, 30, 16, 2, 1, []byte{3, 4})
	require.False(t, ok)
}
