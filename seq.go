package lidnet

// SequenceBits is the width of a wire sequence number.
const SequenceBits = 15

// NumSequenceNumbers is N = 2^15, the modulus every sequence comparison
// and increment wraps on.
const NumSequenceNumbers = 1 << SequenceBits

const seqMask = NumSequenceNumbers - 1

// Seq is a 15-bit sequence number. Values are always kept in
// [0, NumSequenceNumbers). Never compare two Seqs with < or > directly —
// go through RelativeSeq, since the space wraps.
type Seq uint16

// Add returns s shifted by delta, wrapping modulo NumSequenceNumbers.
// delta may be negative.
func (s Seq) Add(delta int) Seq {
	v := (int64(s) + int64(delta)) % NumSequenceNumbers
	if v < 0 {
		v += NumSequenceNumbers
	}
	return Seq(v)
}

// index returns s reduced into [0, mod).
func (s Seq) index(mod int) int {
	return int(uint16(s)) % mod
}

// RelativeSeq returns the signed distance from b to a, wrapping modulo
// NumSequenceNumbers, in the range [-N/2, N/2). A positive result means a
// is "ahead of" b; negative means a is "behind" b.
func RelativeSeq(a, b Seq) int32 {
	const n = int32(NumSequenceNumbers)
	d := (int32(a) - int32(b) + n + n/2) % n
	if d < 0 {
		d += n
	}
	return d - n/2
}

// seqDistanceForward returns (a-b) mod N, always in [0, N).
func seqDistanceForward(a, b Seq) int {
	const n = int32(NumSequenceNumbers)
	d := (int32(a) - int32(b)) % n
	if d < 0 {
		d += n
	}
	return int(d)
}
