// Package store provides versioned persistence for the configuration
// document: load with schema migration, atomic write, and backup rotation.
//
// The on-disk format is a single JSON object with a top-level integer
// "version" and one additional top-level key per module. A missing file is
// a normal condition (the coordinator starts with an empty current-version
// document); unparsable content or an unsupported version is fatal to
// startup.
package store

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yodamaster/bundy/document"
	"github.com/yodamaster/bundy/errors"
)

// ConfigData holds the live configuration document together with its
// storage location.
type ConfigData struct {
	// Data is the configuration document. Only the commit engine mutates
	// it; the store reads it on Write.
	Data document.Document

	dataPath   string
	dbFilename string
	logger     *slog.Logger
}

// New creates an empty current-version ConfigData for the given location
// without touching the filesystem. When fileName is absolute, dataPath is
// ignored and the file's own directory is used instead.
func New(dataPath, fileName string, logger *slog.Logger) *ConfigData {
	if logger == nil {
		logger = slog.Default()
	}
	cd := &ConfigData{
		Data:   document.New(),
		logger: logger,
	}
	if filepath.IsAbs(fileName) {
		cd.dbFilename = fileName
		cd.dataPath = filepath.Dir(fileName)
	} else {
		cd.dbFilename = filepath.Join(dataPath, fileName)
		cd.dataPath = dataPath
	}
	return cd
}

// Filename returns the resolved path of the document file.
func (cd *ConfigData) Filename() string {
	return cd.dbFilename
}

// Read loads the configuration document from disk and migrates it to the
// current schema version.
//
// A missing file yields errors.ErrDataEmpty; the caller should treat that
// as "start with an empty, current-version document". Unparsable content or
// an unsupported stored version yields errors.ErrDataCorrupt, which is
// fatal to startup.
func Read(dataPath, fileName string, logger *slog.Logger) (*ConfigData, error) {
	cd := New(dataPath, fileName, logger)
	cd.logger.Info("Using configuration file", "path", cd.dbFilename)

	raw, err := os.ReadFile(cd.dbFilename)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ErrDataEmpty
		}
		return nil, fmt.Errorf("%w: can't read %s: %v", errors.ErrDataCorrupt, cd.dbFilename, err)
	}

	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf(
			"%w: configuration file out of date or corrupt, please update or remove %s",
			errors.ErrDataCorrupt, cd.dbFilename)
	}
	// A literal null unmarshals into a nil map without error
	if doc == nil {
		return nil, fmt.Errorf(
			"%w: configuration file out of date or corrupt, please update or remove %s",
			errors.ErrDataCorrupt, cd.dbFilename)
	}

	migrated, err := Migrate(doc, cd.logger)
	if err != nil {
		return nil, err
	}
	cd.Data = migrated
	return cd, nil
}

// Migrate upgrades a parsed document to the current schema version and
// returns the result as a copy; the input is never modified. A document
// already at the current version is returned unchanged (as a copy). A
// version newer than CurrentVersion, or older than 1, is corrupt.
//
// Upgrades are applied one version at a time:
//
//	v1 -> v2: format-only bump, no field changes
//	v2 -> v3: the top-level "Boss" module was renamed to "Init"
func Migrate(doc document.Document, logger *slog.Logger) (document.Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: cannot load configuration file: document is not an object",
			errors.ErrDataCorrupt)
	}
	migrated := doc.Clone()

	version, ok := migrated.Version()
	if !ok {
		// Old enough to predate the version key
		version = 1
	}

	if version == document.CurrentVersion {
		return migrated, nil
	}
	if version > document.CurrentVersion {
		return nil, fmt.Errorf("%w: cannot load configuration file: version %d not yet supported",
			errors.ErrDataCorrupt, version)
	}
	if version < 1 {
		return nil, fmt.Errorf("%w: cannot load configuration file: version %d no longer supported",
			errors.ErrDataCorrupt, version)
	}

	newVersion := version
	if newVersion == 1 {
		// Only a format change, nothing else to do
		newVersion = 2
	}
	if newVersion == 2 {
		if boss, ok := migrated["Boss"]; ok {
			if _, ok := migrated["Init"]; !ok {
				migrated["Init"] = boss
			} else {
				// Both present should not happen; keep the existing Init
				// rather than overwrite it
				logger.Warn("Configuration has both 'Boss' and 'Init' sections, ignoring 'Boss'")
			}
			delete(migrated, "Boss")
		}
		newVersion = 3
	}

	migrated.SetVersion(newVersion)
	logger.Info("Automatically updated configuration database",
		"from_version", version, "to_version", newVersion)
	return migrated, nil
}

// Write persists the current document to the file given at construction.
func (cd *ConfigData) Write() error {
	return cd.WriteTo(cd.dbFilename)
}

// WriteTo persists the current document to target atomically: the document
// is written to a fresh temporary file in the target's directory, then
// renamed over the target. On any failure the previously persisted file is
// left untouched and the temporary file is removed.
func (cd *ConfigData) WriteTo(target string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "bundy-config.db.")
	if err != nil {
		return errors.Wrap(err, "ConfigData", "WriteTo", "create temp file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		// Best effort; a leftover temp file is harmless
		_ = os.Remove(tmpName)
	}

	data, err := json.Marshal(cd.Data)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "ConfigData", "WriteTo", "encode document")
	}
	data = append(data, '\n')

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "ConfigData", "WriteTo", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "ConfigData", "WriteTo", "close temp file")
	}

	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return errors.Wrap(err, "ConfigData", "WriteTo", "rename temp file")
	}
	return nil
}

// Backup rotates the document file out of the way: the file is renamed to
// <path>.bak, or <path>.bak.1, <path>.bak.2, ... when earlier backups
// already exist. A missing file is a no-op.
func (cd *ConfigData) Backup() error {
	return BackupFile(cd.dbFilename, cd.logger)
}

// BackupFile renames path to the first unused backup name derived from it.
func BackupFile(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		// Nothing to back up
		return nil
	}

	backup := path + ".bak"
	if _, err := os.Stat(backup); err == nil {
		i := 1
		for {
			candidate := fmt.Sprintf("%s.%d", backup, i)
			if _, err := os.Stat(candidate); err != nil {
				backup = candidate
				break
			}
			i++
		}
	}

	logger.Info("Backed up configuration file", "from", path, "to", backup)
	if err := os.Rename(path, backup); err != nil {
		return errors.Wrap(err, "ConfigData", "Backup", "rename config file")
	}
	return nil
}

// Equal reports whether two stores hold structurally equal documents.
// Storage location is irrelevant to equality.
func (cd *ConfigData) Equal(other *ConfigData) bool {
	if other == nil {
		return false
	}
	return document.Equal(cd.Data, other.Data)
}
