package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"omnidata/logger"
)

// chunkSize bounds memory use while hashing arbitrarily large files.
const chunkSize = 4096

// Digest computes the hex-encoded SHA-256 of everything readable from r.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileDigest computes the digest of a file's exact bytes.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Digest(f)
}

// WriteSignature computes the data file's digest and overwrites the
// signature file with it.
func WriteSignature(dataPath, sigPath string) error {
	digest, err := FileDigest(dataPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(sigPath, []byte(digest), 0644); err != nil {
		return fmt.Errorf("failed to write signature %s: %w", sigPath, err)
	}
	return nil
}

// VerifyFile recomputes the data file's digest and compares it against the
// stored signature. A missing signature file is treated as valid so a first
// run is never blocked, but it is logged as a warning. A mismatch reports
// false without error; the caller decides whether to trust the data.
func VerifyFile(dataPath, sigPath string) (bool, error) {
	log := logger.GetLogger().WithComponent("integrity")

	current, err := FileDigest(dataPath)
	if err != nil {
		return false, err
	}

	stored, err := os.ReadFile(sigPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithFields(logger.Fields{"file": dataPath}).Warn("no signature file found, skipping integrity check")
			return true, nil
		}
		return false, fmt.Errorf("failed to read signature %s: %w", sigPath, err)
	}

	expected := strings.TrimSpace(string(stored))
	if current != expected {
		log.WithFields(logger.Fields{
			"file":     dataPath,
			"expected": expected,
			"actual":   current,
		}).Error("integrity check failed, file content does not match signature")
		return false, nil
	}

	log.WithFields(logger.Fields{"file": dataPath, "digest": current[:8]}).Debug("integrity check passed")
	return true, nil
}
