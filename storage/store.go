package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"omnidata/logger"
	"omnidata/models"
	"omnidata/security"
)

// Store persists a portfolio as an indented JSON file with a sibling
// signature file holding the data file's SHA-256 digest. It assumes a single
// writer; concurrent Save calls against the same path are the caller's
// problem.
type Store struct {
	dataPath   string
	sigPath    string
	windowSize int
	log        *logger.Log
}

// NewStore creates a store rooted at dataPath. The signature file sits next
// to the data file with a .sig extension. windowSize is applied to assets
// rebuilt on load.
func NewStore(dataPath string, windowSize int) *Store {
	ext := filepath.Ext(dataPath)
	sigPath := strings.TrimSuffix(dataPath, ext) + ".sig"
	return &Store{
		dataPath:   dataPath,
		sigPath:    sigPath,
		windowSize: windowSize,
		log:        logger.GetLogger(),
	}
}

// DataPath returns the path of the protected data file.
func (s *Store) DataPath() string { return s.dataPath }

// SigPath returns the path of the signature file.
func (s *Store) SigPath() string { return s.sigPath }

// Save writes the portfolio to the data file, then recomputes and overwrites
// its signature. The two writes are deliberately not transactional: a crash
// in between leaves a stale signature and the next Load refuses the data
// rather than silently accepting it.
func (s *Store) Save(portfolio models.Portfolio) error {
	log := s.log.WithComponent("store").WithFields(logger.Fields{"file": s.dataPath})

	if err := os.MkdirAll(filepath.Dir(s.dataPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	records := make([]models.Record, len(portfolio))
	for i, a := range portfolio {
		records[i] = a.ToRecord()
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio: %w", err)
	}

	if err := os.WriteFile(s.dataPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}

	if err := security.WriteSignature(s.dataPath, s.sigPath); err != nil {
		return fmt.Errorf("failed to sign data file: %w", err)
	}

	logger.IncrementSave()
	log.WithFields(logger.Fields{"records": len(records)}).Info("portfolio saved and signed")
	return nil
}

// Load reads the persisted portfolio after verifying its integrity. A
// missing data file is the first-run case and yields an empty portfolio. An
// integrity mismatch also yields an empty portfolio, with a tamper warning,
// so the process keeps running on fresh state instead of trusting the file.
func (s *Store) Load() (models.Portfolio, error) {
	log := s.log.WithComponent("store").WithFields(logger.Fields{"file": s.dataPath})

	if _, err := os.Stat(s.dataPath); os.IsNotExist(err) {
		log.Info("no data file found, starting with an empty portfolio")
		return models.Portfolio{}, nil
	}

	ok, err := security.VerifyFile(s.dataPath, s.sigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to verify data file: %w", err)
	}
	if !ok {
		log.Warn("integrity check failed, refusing persisted data")
		return models.Portfolio{}, nil
	}

	data, err := os.ReadFile(s.dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse data file: %w", err)
	}

	portfolio := make(models.Portfolio, 0, len(records))
	for _, rec := range records {
		asset, known := models.FromRecord(rec, s.windowSize)
		if !known {
			log.WithFields(logger.Fields{"symbol": rec.Symbol, "type": rec.Type}).Warn("skipping record with unknown type")
			continue
		}
		portfolio = append(portfolio, asset)
	}

	log.WithFields(logger.Fields{"records": len(portfolio)}).Info("portfolio restored")
	return portfolio, nil
}
