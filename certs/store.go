package certs

import (
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// The certificate is public and read by whatever serves TLS, the key is not.
const (
	certMode os.FileMode = 0o644
	keyMode  os.FileMode = 0o600
)

// Credential is the certificate and key pair exactly as issued.
type Credential struct {
	Cert    string
	CertKey string
}

// WriteError names which of the two files could not be written.
type WriteError struct {
	Which string
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("unable to write %s to %s: %v", e.Which, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FileStore overwrites the certificate then the key. With Atomic set each
// file is swapped in through a rename, the pair is still written one after
// the other.
type FileStore struct {
	CertPath string
	KeyPath  string
	Atomic   bool
}

func NewFileStore(certPath, keyPath string, atomicWrites bool) *FileStore {
	return &FileStore{
		CertPath: certPath,
		KeyPath:  keyPath,
		Atomic:   atomicWrites,
	}
}

func (s *FileStore) Save(credential Credential) error {
	if err := s.persistFile(s.CertPath, credential.Cert, certMode); err != nil {
		return &WriteError{Which: "certificate", Path: s.CertPath, Err: err}
	}

	if err := s.persistFile(s.KeyPath, credential.CertKey, keyMode); err != nil {
		return &WriteError{Which: "key", Path: s.KeyPath, Err: err}
	}

	return nil
}

// persistFile keeps the mode of a file it replaces and uses mode for a new
// one.
func (s *FileStore) persistFile(path, content string, mode os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	var err error
	if s.Atomic {
		err = atomic.WriteFile(path, strings.NewReader(content))
	} else {
		err = os.WriteFile(path, []byte(content), mode)
	}
	if err != nil {
		return err
	}

	return os.Chmod(path, mode)
}
