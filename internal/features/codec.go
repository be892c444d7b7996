package features

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Record encoding:
//
//	magic   "PFR1"
//	count   u32
//	entries, keys in ascending order:
//	  keyLen  u16
//	  key     keyLen bytes
//	  dtype   u8
//	  ndim    u8
//	  dims    ndim x u64
//	  dataLen u64
//	  data    dataLen bytes
//
// All integers little-endian. Sorted keys make the encoding canonical.
var magic = [4]byte{'P', 'F', 'R', '1'}

const (
	maxKeyLen = 1 << 12
	maxNDim   = 8
)

// Encode serializes the record into its canonical binary form.
func Encode(d Dict) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(magic[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(d)))
	buf.Write(u32[:])

	var u16 [2]byte
	var u64 [8]byte
	for _, k := range d.Keys() {
		if len(k) == 0 || len(k) > maxKeyLen {
			return nil, fmt.Errorf("%w: key length %d", ErrMalformed, len(k))
		}
		a := d[k]
		if len(a.Shape) > maxNDim {
			return nil, fmt.Errorf("%w: key %q has %d dimensions", ErrMalformed, k, len(a.Shape))
		}

		binary.LittleEndian.PutUint16(u16[:], uint16(len(k)))
		buf.Write(u16[:])
		buf.WriteString(k)

		buf.WriteByte(byte(a.DType))
		buf.WriteByte(byte(len(a.Shape)))
		for _, dim := range a.Shape {
			binary.LittleEndian.PutUint64(u64[:], uint64(dim))
			buf.Write(u64[:])
		}

		binary.LittleEndian.PutUint64(u64[:], uint64(len(a.Data)))
		buf.Write(u64[:])
		buf.Write(a.Data)
	}

	return buf.Bytes(), nil
}

// Decode parses a record from its binary form. Any structural defect
// yields an error wrapping ErrMalformed.
func Decode(data []byte) (Dict, error) {
	r := bytes.NewReader(data)

	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrMalformed)
	}
	if m != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, m[:])
	}

	count, err := readU32(r)
	if err != nil {
		return nil, err
	}

	out := make(Dict, count)
	for i := uint32(0); i < count; i++ {
		keyLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		if keyLen == 0 || keyLen > maxKeyLen {
			return nil, fmt.Errorf("%w: key length %d", ErrMalformed, keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("%w: short key", ErrMalformed)
		}

		dtype, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: missing dtype", ErrMalformed)
		}
		ndim, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: missing ndim", ErrMalformed)
		}
		if int(ndim) > maxNDim {
			return nil, fmt.Errorf("%w: %d dimensions", ErrMalformed, ndim)
		}

		var shape []int64
		if ndim > 0 {
			shape = make([]int64, ndim)
			for j := range shape {
				v, err := readU64(r)
				if err != nil {
					return nil, err
				}
				shape[j] = int64(v)
			}
		}

		dataLen, err := readU64(r)
		if err != nil {
			return nil, err
		}
		if dataLen > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: data length %d exceeds remaining %d", ErrMalformed, dataLen, r.Len())
		}
		payload := make([]byte, dataLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: short data", ErrMalformed)
		}

		a := &Array{DType: DType(dtype), Shape: shape, Data: payload}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		if _, dup := out[string(key)]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrMalformed, key)
		}
		out[string(key)] = a
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return out, nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated", ErrMalformed)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
