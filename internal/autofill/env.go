// internal/autofill/env.go
package autofill

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvSource looks values up in the process environment first and then in
// a dotenv file read once at construction.
type EnvSource struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

// NewEnvSource reads path as a dotenv file. A missing file yields an empty
// file layer; any other read or parse error is returned.
func NewEnvSource(path string) (*EnvSource, error) {
	s := &EnvSource{file: map[string]string{}, lookup: os.LookupEnv}
	if path == "" {
		return s, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read field values from %s: %w", path, err)
	}
	s.file = values
	return s, nil
}

// Lookup implements ValueSource.
func (s *EnvSource) Lookup(key string) (string, bool) {
	if v, ok := s.lookup(key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

// Len is the number of values read from the file.
func (s *EnvSource) Len() int {
	return len(s.file)
}

// StaticSource is a fixed ValueSource.
type StaticSource map[string]string

// Lookup implements ValueSource.
func (s StaticSource) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}
