package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEMSINKS_"

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from DEMSINKS_* variables, e.g. DEMSINKS_MIN_SIZE.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("MIN_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMIN_SIZE: %w", EnvPrefix, err)
		}
		c.MinSize = ptrInt(n)
	}
	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"MIN_HEIGHT", &c.MinHeight},
		{"INTERVAL", &c.Interval},
		{"DELTA", &c.Delta},
	} {
		if v, ok := get(f.name); ok {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
			}
			*f.dst = ptrFloat64(x)
		}
	}
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"CONNECTIVITY", &c.Connectivity},
		{"WRITERS", &c.Writers},
	} {
		if v, ok := get(f.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
			}
			*f.dst = ptrInt(n)
		}
	}
	for _, f := range []struct {
		name string
		dst  **bool
	}{
		{"SHAPEFILE", &c.Shapefile},
		{"PREVIEWS", &c.Previews},
	} {
		if v, ok := get(f.name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
			}
			*f.dst = ptrBool(b)
		}
	}
	if v, ok := get("OUT_DIR"); ok {
		c.OutDir = ptrString(v)
	}
	if v, ok := get("DATABASE"); ok {
		c.Database = ptrString(v)
	}
	return c.Validate()
}
