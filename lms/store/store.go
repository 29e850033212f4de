// Package store provides durable and in-memory backings for the
// write-then-release private-key persistence contract described by
// common.UpdateFunc: Save must return only after newPrivateKey is safely
// on disk (or otherwise durable), since a caller is relying on the
// returned bool to decide whether it's safe to release a signature.
package store

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/nightlyone/lockfile"

	"github.com/edsrzf/mmap-go"
)

// KeyStore is the persistence contract a signer uses to read its
// serialized private key at startup and to durably record each rollover.
type KeyStore interface {
	// Load returns the most recently saved private key bytes, or
	// os.ErrNotExist (wrapped) if nothing has been saved yet.
	Load() ([]byte, error)

	// Save durably records newPrivateKey and reports whether it
	// succeeded. Save has the exact shape of common.UpdateFunc and is
	// meant to be passed directly as one.
	Save(newPrivateKey []byte) bool

	// Close releases any held file handles, mappings, or locks.
	Close() error
}

// FileKeyStore is a KeyStore backed by a single file plus a sibling
// lockfile that enforces single-writer access, mirroring the container
// layout used for XMSS^MT private keys: path/to/key and path/to/key.lock.
type FileKeyStore struct {
	path   string
	lock   lockfile.Lockfile
	mapped mmap.MMap
	file   *os.File
}

// OpenFileKeyStore takes an exclusive lock on path and prepares it for
// reading and writing. The lock is released by Close.
func OpenFileKeyStore(path string) (*FileKeyStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.New(absPath + ".lock")
	if err != nil {
		return nil, err
	}
	// TryLock accepts a lock already owned by this process, so a second
	// opener in the same process is refused here.
	if owner, err := lock.GetOwner(); err == nil && owner.Pid == os.Getpid() {
		return nil, lockfile.ErrBusy
	}
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	return &FileKeyStore{path: absPath, lock: lock}, nil
}

// Load reads the current contents of the key file through a read-only
// memory mapping and returns a fresh copy of the mapped bytes on every
// call. The mapping is kept until the next Load or Close.
func (s *FileKeyStore) Load() ([]byte, error) {
	if s.mapped != nil {
		if err := s.mapped.Unmap(); err != nil {
			return nil, err
		}
		s.mapped = nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, os.ErrNotExist
	}

	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	s.mapped = mapped

	out := make([]byte, len(mapped))
	copy(out, mapped)
	return out, nil
}

// Save writes newPrivateKey to a temporary file in the same directory and
// renames it over the key file, so a crash mid-write never leaves a
// truncated file behind for Load to return. It reports false, rather than
// an error, on any failure: its signature is the persistence hook a
// signer calls directly, and a failed Save must simply block the
// signature release, not panic the signer.
func (s *FileKeyStore) Save(newPrivateKey []byte) bool {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return false
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(newPrivateKey); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return false
	}
	return true
}

// Close releases the mapping, if any, and the lockfile, aggregating any
// failures from either step rather than masking one with the other.
func (s *FileKeyStore) Close() error {
	var result error
	if s.mapped != nil {
		if err := s.mapped.Unmap(); err != nil {
			result = multierror.Append(result, err)
		}
		s.mapped = nil
	}
	if err := s.lock.Unlock(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// MemStore is an in-memory KeyStore for tests. FailNext and FailAlways
// let a test simulate a persistence hook that can't durably record a
// rollover -- the scenario a signer must refuse to release a signature
// for.
type MemStore struct {
	Bytes      []byte
	FailNext   bool
	FailAlways bool
	SaveCount  int
}

func (m *MemStore) Load() ([]byte, error) {
	if m.Bytes == nil {
		return nil, os.ErrNotExist
	}
	return m.Bytes, nil
}

func (m *MemStore) Save(newPrivateKey []byte) bool {
	m.SaveCount++
	if m.FailAlways || m.FailNext {
		m.FailNext = false
		return false
	}
	m.Bytes = append([]byte(nil), newPrivateKey...)
	return true
}

func (m *MemStore) Close() error { return nil }
