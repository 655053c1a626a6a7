package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// ErrWrongStoreType is returned when a reference of another DocumentDataType is passed to a store.
var ErrWrongStoreType = errors.New("document data type not supported by this file store")

// Bytes64Store keeps document bytes in the database: the reference is the base64 encoded document.
type Bytes64Store struct{}

func NewBytes64Store() *Bytes64Store {
	return &Bytes64Store{}
}

func (s *Bytes64Store) PutFile(ctx context.Context, data []byte) (signing.DocumentDataType, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("document is empty")
	}
	return signing.DocumentDataTypeBytes64, base64.StdEncoding.EncodeToString(data), nil
}

func (s *Bytes64Store) GetFile(ctx context.Context, t signing.DocumentDataType, data string) ([]byte, error) {
	if t != signing.DocumentDataTypeBytes64 {
		return nil, fmt.Errorf("%w: %s", ErrWrongStoreType, t)
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document data: %w", err)
	}
	return b, nil
}

func (s *Bytes64Store) UpdateFile(ctx context.Context, req signing.UpdateFileRequest) (string, error) {
	if req.Type != signing.DocumentDataTypeBytes64 {
		return "", fmt.Errorf("%w: %s", ErrWrongStoreType, req.Type)
	}
	_, ref, err := s.PutFile(ctx, req.NewData)
	return ref, err
}

// LocalFileStore writes documents to a directory. Files are named by the SHA-256 checksum of their
// content and are never overwritten or removed, so a reference held by a rolled back transaction
// still resolves.
type LocalFileStore struct {
	dir string
}

func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create file store directory %s: %w", dir, err)
	}
	return &LocalFileStore{dir: dir}, nil
}

func (s *LocalFileStore) PutFile(ctx context.Context, data []byte) (signing.DocumentDataType, string, error) {
	checksum, err := crypto.Hash(data)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash document: %w", err)
	}
	name := checksum + ".pdf"

	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to open file store directory: %w", err)
	}
	defer root.Close()

	if _, err := root.Stat(name); err == nil {
		return signing.DocumentDataTypeLocalFile, name, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("failed to stat %s: %w", name, err)
	}

	// write then rename so a partially written file is never visible under its checksum name
	tmp := name + ".tmp"
	if err := root.WriteFile(tmp, data, 0o640); err != nil {
		return "", "", fmt.Errorf("failed to write document: %w", err)
	}
	if err := root.Rename(tmp, name); err != nil {
		return "", "", fmt.Errorf("failed to store document: %w", err)
	}
	return signing.DocumentDataTypeLocalFile, name, nil
}

func (s *LocalFileStore) GetFile(ctx context.Context, t signing.DocumentDataType, data string) ([]byte, error) {
	if t != signing.DocumentDataTypeLocalFile {
		return nil, fmt.Errorf("%w: %s", ErrWrongStoreType, t)
	}
	if data != filepath.Base(data) {
		return nil, fmt.Errorf("invalid document reference %q", data)
	}

	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open file store directory: %w", err)
	}
	defer root.Close()

	b, err := root.ReadFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", data, err)
	}
	if !crypto.VerifyHash(b, data[:len(data)-len(filepath.Ext(data))]) {
		return nil, fmt.Errorf("document %s does not match its checksum", data)
	}
	return b, nil
}

func (s *LocalFileStore) UpdateFile(ctx context.Context, req signing.UpdateFileRequest) (string, error) {
	if req.Type != signing.DocumentDataTypeLocalFile {
		return "", fmt.Errorf("%w: %s", ErrWrongStoreType, req.Type)
	}
	_, ref, err := s.PutFile(ctx, req.NewData)
	return ref, err
}
