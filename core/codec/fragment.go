package codec

import "errors"

// FragmentSize is the fixed payload size of every fragment but the last.
const FragmentSize = 128

// ErrIncompleteMessage is returned by Reassemble when not every fragment
// index in [0, total) has been inserted yet.
var ErrIncompleteMessage = errors.New("codec: incomplete message")

// Fragment is a fixed-size 128-byte slice of a larger application message.
type Fragment struct {
	Data             [FragmentSize]byte
	Length           uint8
	FragmentIndex    uint64
	TotalNFragments  uint64
}

// Bytes returns the valid portion of the fragment's data.
func (f Fragment) Bytes() []byte {
	return f.Data[:f.Length]
}

// FragmentBytes chunks b into fixed 128-byte fragments. A zero-length
// message still produces exactly one fragment with Length 0. The final
// fragment carries Length < FragmentSize when len(b) is not a multiple of
// FragmentSize.
func FragmentBytes(b []byte) []Fragment {
	total := uint64(len(b)) / FragmentSize
	if uint64(len(b))%FragmentSize != 0 || len(b) == 0 {
		total++
	}

	fragments := make([]Fragment, total)
	for i := uint64(0); i < total; i++ {
		start := i * FragmentSize
		end := start + FragmentSize
		if end > uint64(len(b)) {
			end = uint64(len(b))
		}
		var frag Fragment
		frag.Length = uint8(end - start)
		frag.FragmentIndex = i
		frag.TotalNFragments = total
		copy(frag.Data[:], b[start:end])
		fragments[i] = frag
	}
	return fragments
}

// Reassemble concatenates fragments indexed 0..total into the original byte
// slice. It returns ErrIncompleteMessage if any index in that range is
// missing. Fragments are looked up by FragmentIndex, so out-of-order and
// duplicate insertion are both handled by the caller simply passing a
// complete index-keyed set.
func Reassemble(byIndex map[uint64]Fragment, total uint64) ([]byte, error) {
	out := make([]byte, 0, total*FragmentSize)
	for i := uint64(0); i < total; i++ {
		frag, ok := byIndex[i]
		if !ok {
			return nil, ErrIncompleteMessage
		}
		out = append(out, frag.Bytes()...)
	}
	return out, nil
}
