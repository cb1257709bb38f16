package envutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads path into the process environment. Variables that are
// already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func WriteDotEnv(path string, values map[string]string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := godotenv.Write(values, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// Or returns the trimmed value of name, or fallback when it is unset or
// blank.
func Or(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

// Duration parses name as a time.Duration, falling back on absence or a
// malformed value.
func Duration(name string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(Or(name, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Int64(name string, fallback int64) int64 {
	n, err := strconv.ParseInt(Or(name, ""), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func Bool(name string, fallback bool) bool {
	switch strings.ToLower(Or(name, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
