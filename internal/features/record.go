package features

import "sort"

// Well-known feature names produced by the pipeline. The set is open;
// steps pass through names they do not recognize.
const (
	KeyMSA               = "msa"
	KeyDeletionMatrix    = "deletion_matrix_int"
	KeyAatype            = "aatype"
	KeyResidueIndex      = "residue_index"
	KeySequence          = "sequence"
	KeyDomainName        = "domain_name"
	KeyNumAlignments     = "num_alignments"
	KeyAssemblyNumChains = "assembly_num_chains"
	KeyAuthChainID       = "auth_chain_id"
)

// Dict is a feature record, the payload every step exchanges. Keys name
// arrays such as the MSA matrix or per-residue annotations.
type Dict map[string]*Array

// Keys returns the feature names in sorted order.
func (d Dict) Keys() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the record.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, a := range d {
		out[k] = a.Clone()
	}
	return out
}

// MSADepth returns the row count of the MSA matrix, the number of
// aligned sequences. ok is false when the record has no 2-D msa array.
func (d Dict) MSADepth() (depth int64, ok bool) {
	a, present := d[KeyMSA]
	if !present || len(a.Shape) != 2 {
		return 0, false
	}
	return a.Shape[0], true
}

// Validate checks every array in the record.
func (d Dict) Validate() error {
	for _, k := range d.Keys() {
		if err := d[k].Validate(); err != nil {
			return err
		}
	}
	return nil
}
