package sync

import (
	"crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

// hashChunkSize bounds the memory used to hash a file, regardless of its size.
const hashChunkSize = 32 * 1024

// Differs returns whether the replica file needs to be overwritten by the
// source file. Both files must exist.
//
// The cheap checks run first: files of different sizes differ, and a source
// file that was modified after the replica differs even if the contents happen
// to match. Only when both checks pass are the contents hashed.
func Differs(fs afero.Fs, source, replica string) (bool, error) {
	srcInfo, err := fs.Stat(source)
	if err != nil {
		return false, errors.WithContext(err, "stat source")
	}

	replicaInfo, err := fs.Stat(replica)
	if err != nil {
		return false, errors.WithContext(err, "stat replica")
	}

	if srcInfo.Size() != replicaInfo.Size() {
		return true, nil
	}

	if srcInfo.ModTime().After(replicaInfo.ModTime()) {
		return true, nil
	}

	srcHash, err := HashFile(fs, source)
	if err != nil {
		return false, errors.WithContext(err, "hash source")
	}

	replicaHash, err := HashFile(fs, replica)
	if err != nil {
		return false, errors.WithContext(err, "hash replica")
	}
	return srcHash != replicaHash, nil
}

// HashFile returns the sha512 hash of the file at the given path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.CopyBuffer(hasher, f, make([]byte, hashChunkSize)); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
