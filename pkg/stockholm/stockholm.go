// Package stockholm reads Stockholm-format multiple sequence
// alignments, the output format of jackhmmer and hmmsearch. Only the
// sequence names are parsed; alignment columns and markup are skipped.
package stockholm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotStockholm signals input without the Stockholm header line.
var ErrNotStockholm = errors.New("stockholm: missing header")

// SequenceNames returns the distinct sequence names in r, in first-seen
// order. Names repeated across alignment blocks count once.
func SequenceNames(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)

	var (
		names     []string
		seen      = make(map[string]struct{})
		sawHeader bool
	)

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "":
				// blank separator between blocks
			case !sawHeader:
				if !strings.HasPrefix(trimmed, "# STOCKHOLM") {
					return nil, ErrNotStockholm
				}
				sawHeader = true
			case strings.HasPrefix(trimmed, "#"):
				// markup (#=GF, #=GS, #=GC, #=GR)
			case trimmed == "//":
				// block terminator
			default:
				name := strings.Fields(trimmed)[0]
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					names = append(names, name)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stockholm: read: %w", err)
		}
	}

	if !sawHeader {
		return nil, ErrNotStockholm
	}
	return names, nil
}

// Count returns the number of distinct sequences in the alignment.
func Count(r io.Reader) (int, error) {
	names, err := SequenceNames(r)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}
