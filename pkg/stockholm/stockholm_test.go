package stockholm

import (
	"errors"
	"strings"
	"testing"
)

const twoBlockAlignment = `# STOCKHOLM 1.0
#=GF ID test

query           MKVLAT--GDE
UniRef90_A0A1   MKVLATNNGDE
UniRef90_B2Q7   MKV-ATN-GDE

query           TTS
UniRef90_A0A1   TTS
UniRef90_B2Q7   T-S
//
`

func TestSequenceNames(t *testing.T) {
	names, err := SequenceNames(strings.NewReader(twoBlockAlignment))
	if err != nil {
		t.Fatalf("SequenceNames error = %v", err)
	}

	want := []string{"query", "UniRef90_A0A1", "UniRef90_B2Q7"}
	if len(names) != len(want) {
		t.Fatalf("got %d names %v, want %d", len(names), names, len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCount_DeduplicatesAcrossBlocks(t *testing.T) {
	n, err := Count(strings.NewReader(twoBlockAlignment))
	if err != nil {
		t.Fatalf("Count error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3 (blocks repeat the same names)", n)
	}
}

func TestCount_MarkupOnly(t *testing.T) {
	n, err := Count(strings.NewReader("# STOCKHOLM 1.0\n#=GF ID empty\n//\n"))
	if err != nil {
		t.Fatalf("Count error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestCount_MissingHeader(t *testing.T) {
	for _, in := range []string{"", "query MKV\n", ">fasta\nMKV\n"} {
		if _, err := Count(strings.NewReader(in)); !errors.Is(err, ErrNotStockholm) {
			t.Errorf("Count(%q) error = %v, want ErrNotStockholm", in, err)
		}
	}
}

func TestCount_NoTrailingNewline(t *testing.T) {
	n, err := Count(strings.NewReader("# STOCKHOLM 1.0\nquery MKV"))
	if err != nil {
		t.Fatalf("Count error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
