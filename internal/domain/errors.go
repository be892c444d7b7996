package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySequence signals a FASTA entry with no residues.
	ErrEmptySequence = errors.New("empty sequence")
	// ErrInvalidSequence signals residues outside the amino acid alphabet.
	ErrInvalidSequence = errors.New("invalid sequence")
	// ErrNoChains signals a FASTA input with no entries at all.
	ErrNoChains = errors.New("no chains in input")
	// ErrTooManyChains signals more chains than the chain ID alphabet can name.
	ErrTooManyChains = errors.New("too many chains")
	// ErrUnknownModelPreset signals an unrecognized model preset name.
	ErrUnknownModelPreset = errors.New("unknown model preset")
	// ErrUnknownDBPreset signals an unrecognized database preset name.
	ErrUnknownDBPreset = errors.New("unknown database preset")
	// ErrMissingChainPath signals a manifest without an entry for a chain.
	ErrMissingChainPath = errors.New("manifest is missing chain path")
	// ErrBadManifest signals a manifest that cannot be parsed.
	ErrBadManifest = errors.New("bad manifest")
)

// ChainPathError wraps ErrMissingChainPath with the chain that has no
// manifest entry.
type ChainPathError struct {
	ChainID string
}

func (e *ChainPathError) Error() string {
	return fmt.Sprintf("%s: chain %s", ErrMissingChainPath.Error(), e.ChainID)
}

func (e *ChainPathError) Unwrap() error { return ErrMissingChainPath }
