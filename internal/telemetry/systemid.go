package telemetry

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tphakala/soundbackend/internal/errors"
)

const systemIDFile = ".system_id"

// GenerateSystemID returns a random identifier formatted XXXX-XXXX-XXXX.
func GenerateSystemID() string {
	u := uuid.New()
	id := strings.ToUpper(hex.EncodeToString(u[:6]))
	return id[0:4] + "-" + id[4:8] + "-" + id[8:12]
}

// LoadOrCreateSystemID reads the system id stored in dir, creating and
// saving a new one when the file is missing or malformed.
func LoadOrCreateSystemID(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("telemetry").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}

	path := filepath.Join(dir, systemIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); isValidSystemID(id) {
			return id, nil
		}
	}

	id := GenerateSystemID()
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", errors.New(err).
			Component("telemetry").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return id, nil
}

func isValidSystemID(id string) bool {
	if len(id) != 14 || id[4] != '-' || id[9] != '-' {
		return false
	}
	_, err := hex.DecodeString(id[0:4] + id[5:9] + id[10:14])
	return err == nil
}
