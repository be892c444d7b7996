package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/protomerlab/protomer/internal/storage"
)

// Get retrieves the artifact blob at u.
func (s *Store) Get(ctx context.Context, u storage.URI) ([]byte, error) {
	cmd := s.b().Get().Key(s.blobKey(u)).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, &storage.Error{Op: storage.OpGet, Err: err}
	}
	return data, nil
}

// Put stores the artifact blob at u.
func (s *Store) Put(ctx context.Context, u storage.URI, data []byte) error {
	cmd := s.b().Set().Key(s.blobKey(u)).Value(rueidis.BinaryString(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &storage.Error{Op: storage.OpPut, Err: err}
	}
	return nil
}

// Exists reports whether an artifact blob is present at u.
func (s *Store) Exists(ctx context.Context, u storage.URI) (bool, error) {
	cmd := s.b().Exists().Key(s.blobKey(u)).Build()
	count, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &storage.Error{Op: storage.OpExists, Err: err}
	}
	return count > 0, nil
}
