package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestFragmentBytes_EmptyMessage(t *testing.T) {
	frags := FragmentBytes(nil)
	if len(frags) != 1 {
		t.Fatalf("len = %d, want 1", len(frags))
	}
	if frags[0].Length != 0 || frags[0].TotalNFragments != 1 {
		t.Errorf("frag = %+v", frags[0])
	}
}

func TestFragmentBytes_ExactMultiple(t *testing.T) {
	b := bytes.Repeat([]byte{0xAB}, FragmentSize*3)
	frags := FragmentBytes(b)
	if len(frags) != 3 {
		t.Fatalf("len = %d, want 3", len(frags))
	}
	for i, f := range frags {
		if f.Length != FragmentSize {
			t.Errorf("frag[%d].Length = %d, want %d", i, f.Length, FragmentSize)
		}
		if f.TotalNFragments != 3 || f.FragmentIndex != uint64(i) {
			t.Errorf("frag[%d] = %+v", i, f)
		}
	}
}

func TestFragmentBytes_Remainder(t *testing.T) {
	b := bytes.Repeat([]byte{0x01}, FragmentSize*2+10)
	frags := FragmentBytes(b)
	if len(frags) != 3 {
		t.Fatalf("len = %d, want 3", len(frags))
	}
	if frags[2].Length != 10 {
		t.Errorf("last fragment length = %d, want 10", frags[2].Length)
	}
}

func TestReassemble_RoundTrip(t *testing.T) {
	msgs := [][]byte{
		nil,
		[]byte("short"),
		bytes.Repeat([]byte{0x42}, FragmentSize),
		bytes.Repeat([]byte{0x07}, FragmentSize*5+3),
	}

	for _, msg := range msgs {
		frags := FragmentBytes(msg)
		byIndex := make(map[uint64]Fragment, len(frags))
		for _, f := range frags {
			byIndex[f.FragmentIndex] = f
		}
		got, err := Reassemble(byIndex, uint64(len(frags)))
		if err != nil {
			t.Fatalf("Reassemble() error = %v", err)
		}
		if !bytes.Equal(got, msg) && !(len(got) == 0 && len(msg) == 0) {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(msg))
		}
	}
}

func TestReassemble_RandomRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 20; n++ {
		size := r.Intn(FragmentSize * 4)
		msg := make([]byte, size)
		r.Read(msg)

		frags := FragmentBytes(msg)
		byIndex := make(map[uint64]Fragment, len(frags))
		// insert out of order
		order := r.Perm(len(frags))
		for _, idx := range order {
			byIndex[frags[idx].FragmentIndex] = frags[idx]
		}
		got, err := Reassemble(byIndex, uint64(len(frags)))
		if err != nil {
			t.Fatalf("Reassemble() error = %v", err)
		}
		if !bytes.Equal(got, msg) {
			t.Errorf("mismatch for size %d", size)
		}
	}
}

func TestReassemble_Incomplete(t *testing.T) {
	frags := FragmentBytes(bytes.Repeat([]byte{0x01}, FragmentSize*3))
	byIndex := map[uint64]Fragment{0: frags[0], 2: frags[2]}
	if _, err := Reassemble(byIndex, 3); err != ErrIncompleteMessage {
		t.Errorf("err = %v, want ErrIncompleteMessage", err)
	}
}

func TestReassemble_DuplicateIdempotent(t *testing.T) {
	frags := FragmentBytes([]byte("hello world"))
	byIndex := make(map[uint64]Fragment)
	for _, f := range frags {
		byIndex[f.FragmentIndex] = f
		byIndex[f.FragmentIndex] = f // duplicate insert
	}
	got, err := Reassemble(byIndex, uint64(len(frags)))
	if err != nil {
		t.Fatalf("Reassemble() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got = %q", got)
	}
}
