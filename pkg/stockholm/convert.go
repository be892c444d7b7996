package stockholm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// alignment is a parsed Stockholm file: aligned sequences keyed by name
// (columns concatenated across blocks) plus #=GS DE descriptions.
type alignment struct {
	names []string
	seqs  map[string]string
	descs map[string]string
}

func parse(r io.Reader) (*alignment, error) {
	br := bufio.NewReader(r)

	a := &alignment{
		seqs:  make(map[string]string),
		descs: make(map[string]string),
	}
	sawHeader := false

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "":
			case !sawHeader:
				if !strings.HasPrefix(trimmed, "# STOCKHOLM") {
					return nil, ErrNotStockholm
				}
				sawHeader = true
			case strings.HasPrefix(trimmed, "#=GS"):
				// #=GS <name> DE <description>
				fields := strings.Fields(trimmed)
				if len(fields) >= 4 && fields[2] == "DE" {
					a.descs[fields[1]] = strings.Join(fields[3:], " ")
				}
			case strings.HasPrefix(trimmed, "#"):
				// other markup (#=GF, #=GC, #=GR)
			case trimmed == "//":
			default:
				fields := strings.Fields(trimmed)
				if len(fields) < 2 {
					return nil, fmt.Errorf("stockholm: sequence line without columns: %q", trimmed)
				}
				name := fields[0]
				if _, ok := a.seqs[name]; !ok {
					a.names = append(a.names, name)
				}
				a.seqs[name] += fields[1]
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
	return a, nil
}

// ToA3M converts a Stockholm alignment to A3M. The first sequence is
// the query and defines the match columns: columns where the query has
// a gap are insertions, so other sequences keep them lowercased and the
// query drops them. maxSequences > 0 keeps only the first n sequences.
// Returns the number of sequences written.
func ToA3M(r io.Reader, w io.Writer, maxSequences int) (int, error) {
	a, err := parse(r)
	if err != nil {
		return 0, err
	}
	if len(a.names) == 0 {
		return 0, fmt.Errorf("stockholm: alignment has no sequences")
	}

	names := a.names
	if maxSequences > 0 && len(names) > maxSequences {
		names = names[:maxSequences]
	}

	query := a.seqs[names[0]]
	bw := bufio.NewWriter(w)
	for _, name := range names {
		header := ">" + name
		if d := a.descs[name]; d != "" {
			header += " " + d
		}

		var sb strings.Builder
		seq := a.seqs[name]
		for i := 0; i < len(seq) && i < len(query); i++ {
			c := seq[i]
			switch {
			case query[i] != '-':
				sb.WriteByte(c)
			case c == '-' || c == '.':
				// gap in an insertion column, dropped
			default:
				if c >= 'A' && c <= 'Z' {
					c += 'a' - 'A'
				}
				sb.WriteByte(c)
			}
		}

		if _, err := fmt.Fprintf(bw, "%s\n%s\n", header, sb.String()); err != nil {
			return 0, fmt.Errorf("stockholm: write a3m: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("stockholm: write a3m: %w", err)
	}
	return len(names), nil
}

// Truncate copies the alignment keeping only the first maxSequences
// sequences; markup that names a dropped sequence is dropped with it,
// other markup and blank lines pass through. maxSequences <= 0 keeps
// everything. Returns the number of sequences kept.
func Truncate(r io.Reader, w io.Writer, maxSequences int) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("stockholm: read: %w", err)
	}

	kept, err := SequenceNames(strings.NewReader(string(raw)))
	if err != nil {
		return 0, err
	}
	if maxSequences > 0 && len(kept) > maxSequences {
		kept = kept[:maxSequences]
	}
	keep := make(map[string]struct{}, len(kept))
	for _, n := range kept {
		keep[n] = struct{}{}
	}

	keepLine := func(trimmed string) bool {
		switch {
		case trimmed == "" || trimmed == "//":
			return true
		case strings.HasPrefix(trimmed, "#=GS") || strings.HasPrefix(trimmed, "#=GR"):
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				return true
			}
			_, ok := keep[fields[1]]
			return ok
		case strings.HasPrefix(trimmed, "#"):
			return true
		default:
			_, ok := keep[strings.Fields(trimmed)[0]]
			return ok
		}
	}

	bw := bufio.NewWriter(w)
	for _, line := range strings.SplitAfter(string(raw), "\n") {
		if line == "" {
			continue
		}
		if keepLine(strings.TrimSpace(line)) {
			if _, err := bw.WriteString(line); err != nil {
				return 0, fmt.Errorf("stockholm: write: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("stockholm: write: %w", err)
	}
	return len(kept), nil
}
