package lidnet

import (
	"sync/atomic"
	"time"

	"github.com/google/btree"
)

// FragmentHeaderSize is the worst-case varint preamble size prepended to
// a fragment chunk, used when sizing chunks against the MTU budget.
const FragmentHeaderSize = 4 * 5 // 4 varint(uint32) fields, 5 bytes worst case each

// fragmenter splits an oversize payload into chunks carried as
// independent ReliableOrdered messages on the ReliableOrdered channel with
// the requested sub-index (see fragmentChannel); that channel also carries
// ordinary ReliableOrdered messages sent on the same sub-index. One
// fragmenter exists per connection; nextGroupID is monotonically
// increasing and is advanced atomically, since split runs on whichever
// goroutine calls Connection.Send.
type fragmenter struct {
	nextGroupID uint32
}

// split divides data into chunks no larger than chunkSize, assigning a
// fresh group id.
func (f *fragmenter) split(data []byte, chunkSize int) (groupID uint32, chunks [][]byte) {
	groupID = atomic.AddUint32(&f.nextGroupID, 1) - 1

	if chunkSize <= 0 {
		chunkSize = 1
	}
	chunks = make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	if len(data) == 0 {
		chunks = append(chunks, nil)
	}
	return groupID, chunks
}

// fragmentGroup tracks reassembly progress for one oversize payload.
type fragmentGroup struct {
	groupID   uint32
	totalBits uint32
	numChunks int
	chunks    [][]byte
	received  []bool
	gotCount  int
	createdAt time.Time
}

// Less orders groups oldest-first so the assembler can evict the oldest
// in-progress group in O(log n) when the bound is exceeded,
// grounded on github.com/google/btree.
func (g *fragmentGroup) Less(other btree.Item) bool {
	og := other.(*fragmentGroup)
	if g.createdAt.Equal(og.createdAt) {
		return g.groupID < og.groupID
	}
	return g.createdAt.Before(og.createdAt)
}

// fragmentAssembler reassembles chunks into complete payloads, per
// connection.
type fragmentAssembler struct {
	maxGroups int
	groups    map[uint32]*fragmentGroup
	byAge     *btree.BTree
}

func newFragmentAssembler(maxGroups int) *fragmentAssembler {
	return &fragmentAssembler{
		maxGroups: maxGroups,
		groups:    make(map[uint32]*fragmentGroup),
		byAge:     btree.New(8),
	}
}

// addChunk records one chunk of a fragment group. When the group
// completes, it returns the reassembled payload and true, and the group
// is evicted.
func (a *fragmentAssembler) addChunk(now time.Time, groupID uint32, totalBits uint32, numChunks int, chunkNumber int, chunk []byte) ([]byte, bool) {
	if numChunks <= 0 || chunkNumber < 0 || chunkNumber >= numChunks {
		return nil, false
	}

	g, ok := a.groups[groupID]
	if !ok {
		g = &fragmentGroup{
			groupID:   groupID,
			totalBits: totalBits,
			numChunks: numChunks,
			chunks:    make([][]byte, numChunks),
			received:  make([]bool, numChunks),
			createdAt: now,
		}
		a.groups[groupID] = g
		a.byAge.ReplaceOrInsert(g)
		a.evictIfNeeded()
		// eviction may have just removed the group we inserted, if
		// maxGroups is zero; guard against operating on a removed group.
		if _, stillThere := a.groups[groupID]; !stillThere {
			return nil, false
		}
	}

	if numChunks != g.numChunks {
		return nil, false // chunk count changed mid-flight: malformed, drop
	}

	if !g.received[chunkNumber] {
		g.received[chunkNumber] = true
		g.chunks[chunkNumber] = chunk
		g.gotCount++
	}

	if g.gotCount < g.numChunks {
		return nil, false
	}

	a.remove(g)

	totalBytes := int((g.totalBits + 7) / 8)
	out := make([]byte, 0, totalBytes)
	for _, c := range g.chunks {
		out = append(out, c...)
	}
	if totalBytes > 0 && len(out) > totalBytes {
		out = out[:totalBytes]
	}
	return out, true
}

func (a *fragmentAssembler) remove(g *fragmentGroup) {
	delete(a.groups, g.groupID)
	a.byAge.Delete(g)
}

func (a *fragmentAssembler) evictIfNeeded() {
	for len(a.groups) > a.maxGroups {
		item := a.byAge.Min()
		if item == nil {
			return
		}
		a.remove(item.(*fragmentGroup))
	}
}

// reset discards every in-progress group, e.g. on connection loss.
func (a *fragmentAssembler) reset() {
	a.groups = make(map[uint32]*fragmentGroup)
	a.byAge = btree.New(8)
}
