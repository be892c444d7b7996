// Package domain defines the core types of a folding run: chains,
// run parameters, model runners and the chain manifest that links a
// run's per-chain artifacts together.
package domain

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/TuftsBCB/io/fasta"
	"github.com/TuftsBCB/seq"
)

// chainIDAlphabet assigns PDB-style chain identifiers in FASTA order.
// Its length caps how many chains one assembly can carry.
const chainIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MaxChains is the largest number of chains a single run can hold.
const MaxChains = len(chainIDAlphabet)

// aminoAcids covers the 20 standard residues plus the ambiguity and
// nonstandard codes AlphaFold inputs may carry (B, J, O, U, X, Z).
const aminoAcids = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Chain is one protomer of the target assembly.
type Chain struct {
	ID       string
	Name     string
	Sequence string
}

// FASTA renders the chain as a single-entry FASTA document, the input
// format the search tools expect.
func (c Chain) FASTA() ([]byte, error) {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	residues := make([]seq.Residue, len(c.Sequence))
	for i := 0; i < len(c.Sequence); i++ {
		residues[i] = seq.Residue(c.Sequence[i])
	}

	var buf bytes.Buffer
	w := fasta.NewWriter(&buf)
	if err := w.Write(seq.Sequence{Name: name, Residues: residues}); err != nil {
		return nil, fmt.Errorf("write fasta: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("write fasta: %w", err)
	}
	return buf.Bytes(), nil
}

// ChainID returns the chain identifier for a zero-based chain index.
func ChainID(i int) (string, error) {
	if i < 0 || i >= MaxChains {
		return "", fmt.Errorf("%w: index %d exceeds %d", ErrTooManyChains, i, MaxChains)
	}
	return string(chainIDAlphabet[i]), nil
}

// IsHomomerOrMonomer reports whether all chains share one sequence, in
// which case merged features can skip cross-chain pairing.
func IsHomomerOrMonomer(chains []Chain) bool {
	unique := make(map[string]struct{}, 1)
	for _, c := range chains {
		unique[c.Sequence] = struct{}{}
	}
	return len(unique) <= 1
}

// ValidateSequence rejects empty sequences and residues outside the
// amino acid alphabet.
func ValidateSequence(s string) error {
	if s == "" {
		return ErrEmptySequence
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(aminoAcids, rune(s[i])) {
			return fmt.Errorf("%w: residue %q at position %d", ErrInvalidSequence, s[i], i)
		}
	}
	return nil
}

// ChainsFromFASTA parses every FASTA entry in r into a chain, assigning
// identifiers A, B, C... in file order. Sequences are uppercased before
// validation.
func ChainsFromFASTA(r io.Reader) ([]Chain, error) {
	seqs, err := fasta.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read fasta: %w", err)
	}
	if len(seqs) == 0 {
		return nil, ErrNoChains
	}
	if len(seqs) > MaxChains {
		return nil, fmt.Errorf("%w: %d entries, limit %d", ErrTooManyChains, len(seqs), MaxChains)
	}

	chains := make([]Chain, len(seqs))
	for i, s := range seqs {
		residues := make([]byte, len(s.Residues))
		for j, res := range s.Residues {
			residues[j] = byte(res)
		}
		sequence := strings.ToUpper(string(residues))
		if err := ValidateSequence(sequence); err != nil {
			return nil, fmt.Errorf("entry %q: %w", s.Name, err)
		}

		id, err := ChainID(i)
		if err != nil {
			return nil, err
		}
		chains[i] = Chain{ID: id, Name: s.Name, Sequence: sequence}
	}
	return chains, nil
}
