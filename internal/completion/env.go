package completion

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// ReadEnvFile parses a dotenv file into KEY=VALUE pairs sorted by key.
func ReadEnvFile(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		out = append(out, k+"="+vars[k])
	}
	return out, nil
}

// LoadEnvFile sets every variable from the file that the process
// environment does not already define. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading secrets env file: %w", err)
	}
	return nil
}

// APIKey returns the value of the named environment variable.
func APIKey(envName string) (string, error) {
	if envName == "" {
		return "", nil
	}
	key := strings.TrimSpace(os.Getenv(envName))
	if key == "" {
		return "", fmt.Errorf("%s not set", envName)
	}
	return key, nil
}
