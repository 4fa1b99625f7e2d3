package conf

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
)

const appDirName = "soundbackend"

// userConfigDir is the per-user directory config init writes to.
func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}
	if runtime.GOOS == osWindows {
		return filepath.Join(home, "AppData", "Roaming", appDirName), nil
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order. When one of them already holds the file only that one is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	userDir, err := userConfigDir()
	if err != nil {
		return nil, err
	}

	var candidates []string
	if runtime.GOOS == osWindows {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		candidates = []string{filepath.Dir(exe), userDir}
	} else {
		candidates = []string{".", userDir, filepath.Join("/etc", appDirName)}
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
			return []string{dir}, nil
		}
	}
	return candidates, nil
}

// DefaultConfigFile returns where `config init` writes a new file.
func DefaultConfigFile() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// moveFile renames src to dst, falling back to copy and remove when the
// two live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	fail := func(err error, op string) error {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", op).
			Context("destination", dst).
			Build()
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fail(err, "open-source")
	}
	defer closeQuietly(in, "source")

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return fail(err, "create-destination")
	}

	if _, err := io.Copy(out, in); err != nil {
		closeQuietly(out, "destination")
		return fail(err, "copy")
	}
	if err := out.Close(); err != nil {
		return fail(err, "close-destination")
	}
	if err := os.Remove(src); err != nil {
		return fail(err, "remove-source")
	}
	return nil
}

func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		GetLogger().Warn("failed to close file", logger.String("file", what), logger.Error(err))
	}
}
