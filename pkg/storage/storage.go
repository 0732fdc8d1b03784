// Package storage persists the trained classifier artifacts.
// The classifier and its label codec are always written and read as a pair,
// optionally encrypted at rest using NaCl secretbox.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32

	// ClassifierArtifact is the base name of the serialized classifier.
	ClassifierArtifact = "face_classifier"
	// CodecArtifact is the base name of the serialized label codec.
	CodecArtifact = "label_encoder"
)

// ErrArtifactNotFound is returned when no artifacts have been saved yet.
var ErrArtifactNotFound = errors.New("model artifacts not found")

// ErrIncompletePair is returned when only one of the two artifacts exists.
var ErrIncompletePair = errors.New("incomplete model artifact pair")

// ErrStorageAccess is returned when storage cannot be accessed.
var ErrStorageAccess = errors.New("failed to access storage")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStorage keeps the classifier artifact pair in a directory.
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// Artifacts encrypted on one machine cannot be read on another.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte

	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}

	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}

	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("faceattend-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// Dir returns the directory the artifacts live in.
func (fs *FileStorage) Dir() string {
	return fs.dataDir
}

// Encrypted reports whether artifacts are encrypted at rest.
func (fs *FileStorage) Encrypted() bool {
	return fs.encryptionEnabled
}

// artifactPath returns the file path for an artifact.
func (fs *FileStorage) artifactPath(name string) string {
	ext := ".json"
	if fs.encryptionEnabled {
		ext = ".enc"
	}
	return filepath.Join(fs.dataDir, name+ext)
}

// Paths returns the classifier and codec file paths.
func (fs *FileStorage) Paths() (classifier, codec string) {
	return fs.artifactPath(ClassifierArtifact), fs.artifactPath(CodecArtifact)
}

// SavePair writes both artifacts. Each is staged in a synced temporary file
// and renamed into place only after both were staged. If the second rename
// fails the previous classifier is restored.
func (fs *FileStorage) SavePair(classifier, codec []byte) error {
	if len(classifier) == 0 || len(codec) == 0 {
		return fmt.Errorf("%w: refusing to save empty artifact", ErrStorageAccess)
	}

	classifierPath, codecPath := fs.Paths()

	classifierTmp, err := fs.stage(ClassifierArtifact, classifier)
	if err != nil {
		return err
	}

	codecTmp, err := fs.stage(CodecArtifact, codec)
	if err != nil {
		os.Remove(classifierTmp)
		return err
	}

	backup, err := fs.backup(classifierPath)
	if err != nil {
		os.Remove(classifierTmp)
		os.Remove(codecTmp)
		return err
	}

	if err := os.Rename(classifierTmp, classifierPath); err != nil {
		os.Remove(classifierTmp)
		os.Remove(codecTmp)
		fs.dropBackup(backup)
		return fmt.Errorf("%w: failed to install classifier: %v", ErrStorageAccess, err)
	}

	if err := os.Rename(codecTmp, codecPath); err != nil {
		os.Remove(codecTmp)
		fs.restore(backup, classifierPath)
		return fmt.Errorf("%w: failed to install label codec: %v", ErrStorageAccess, err)
	}

	fs.dropBackup(backup)
	logging.Debugf("Saved model artifacts to: %s", fs.dataDir)
	return nil
}

// backup keeps a second link to the installed artifact at path so a failed
// save can put it back. It returns "" when there is nothing installed.
func (fs *FileStorage) backup(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	backup := path + ".prev"
	os.Remove(backup)
	if err := os.Link(path, backup); err == nil {
		return backup, nil
	}

	// filesystems without hard links get a copy
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to back up %s: %v", ErrStorageAccess, filepath.Base(path), err)
	}
	if err := os.WriteFile(backup, data, 0600); err != nil {
		os.Remove(backup)
		return "", fmt.Errorf("%w: failed to back up %s: %v", ErrStorageAccess, filepath.Base(path), err)
	}
	return backup, nil
}

// restore puts the backup back at path, or removes path when there was no
// previous artifact.
func (fs *FileStorage) restore(backup, path string) {
	if backup == "" {
		os.Remove(path)
		return
	}
	if err := os.Rename(backup, path); err != nil {
		logging.WithError(err).Warnf("Could not restore previous %s", filepath.Base(path))
	}
}

func (fs *FileStorage) dropBackup(backup string) {
	if backup != "" {
		os.Remove(backup)
	}
}

// stage writes data to a synced temporary file next to its final location.
func (fs *FileStorage) stage(name string, data []byte) (string, error) {
	var err error
	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt %s: %w", name, err)
		}
	}

	f, err := os.CreateTemp(fs.dataDir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}

	tmp := f.Name()
	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%w: failed to write %s: %v", ErrStorageAccess, name, err)
	}

	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(0600); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: failed to close %s: %v", ErrStorageAccess, name, err)
	}

	return tmp, nil
}

// LoadPair reads both artifacts.
func (fs *FileStorage) LoadPair() (classifier, codec []byte, err error) {
	classifierPath, codecPath := fs.Paths()

	classifier, classifierErr := fs.read(classifierPath)
	codec, codecErr := fs.read(codecPath)

	switch {
	case os.IsNotExist(classifierErr) && os.IsNotExist(codecErr):
		return nil, nil, ErrArtifactNotFound
	case os.IsNotExist(classifierErr) || os.IsNotExist(codecErr):
		return nil, nil, ErrIncompletePair
	case classifierErr != nil:
		return nil, nil, fmt.Errorf("failed to read classifier: %w", classifierErr)
	case codecErr != nil:
		return nil, nil, fmt.Errorf("failed to read label codec: %w", codecErr)
	}

	logging.Debugf("Loaded model artifacts from: %s", fs.dataDir)
	return classifier, codec, nil
}

func (fs *FileStorage) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, err
		}
	}

	return data, nil
}

// HasPair reports whether both artifacts exist.
func (fs *FileStorage) HasPair() bool {
	classifierPath, codecPath := fs.Paths()
	_, err1 := os.Stat(classifierPath)
	_, err2 := os.Stat(codecPath)
	return err1 == nil && err2 == nil
}

// RemovePair deletes both artifacts.
func (fs *FileStorage) RemovePair() error {
	classifierPath, codecPath := fs.Paths()
	os.Remove(classifierPath + ".prev")

	removed := 0
	for _, path := range []string{classifierPath, codecPath} {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
		removed++
	}

	if removed == 0 {
		return ErrArtifactNotFound
	}

	logging.Infof("Deleted model artifacts in: %s", fs.dataDir)
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	encrypted := secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey)
	return encrypted, nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}
