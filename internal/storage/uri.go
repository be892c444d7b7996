package storage

import (
	"path"
	"strings"
)

// URI identifies an artifact as scheme://bucket/key. The bucket is the
// first path element after the scheme, so file://scratch/runs/r1 names
// key runs/r1 in bucket scratch of the file backend.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// Parse splits a raw artifact URI into scheme, bucket and key.
func Parse(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return URI{}, &Error{Op: OpParse, Err: ErrInvalidURI}
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, &Error{Op: OpParse, Err: ErrInvalidURI}
	}
	return URI{
		Scheme: scheme,
		Bucket: bucket,
		Key:    strings.Trim(key, "/"),
	}, nil
}

// String renders the URI back to scheme://bucket/key form.
func (u URI) String() string {
	if u.Key == "" {
		return u.Scheme + "://" + u.Bucket
	}
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// Join returns a copy of u with elem appended to the key.
func (u URI) Join(elem ...string) URI {
	parts := append([]string{u.Key}, elem...)
	u.Key = path.Join(parts...)
	return u
}

// Base returns the last element of the key, the artifact's file name.
func (u URI) Base() string {
	if u.Key == "" {
		return u.Bucket
	}
	return path.Base(u.Key)
}

// Join appends path elements to a raw URI string. It is a convenience
// for callers holding prefixes as plain strings, such as manifest
// entries.
func Join(raw string, elem ...string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Join(elem...).String(), nil
}
