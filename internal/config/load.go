package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// lookupEnv and loadDotEnv are seams for tests.
var (
	lookupEnv  = os.LookupEnv
	loadDotEnv = func() error { return godotenv.Load() }
)

// Load builds a Config from defaults, an optional YAML file, an optional .env
// file and the process environment. path may be empty.
//
// Load does not validate; callers run Validate and decide how to treat
// warnings.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := applyDefaults(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config parse %s: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config .env: %w", err)
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	return cfg, nil
}

// Default returns a Config holding only struct-tag defaults.
func Default() *Config {
	cfg := &Config{}
	// Tag defaults are compile-time constants; a failure here is a bug.
	if err := applyDefaults(reflect.ValueOf(cfg).Elem()); err != nil {
		panic(err)
	}
	return cfg
}

func applyDefaults(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fv reflect.Value) error {
		def := field.Tag.Get("default")
		if def == "" {
			return nil
		}
		if err := setField(fv, def); err != nil {
			return fmt.Errorf("default for %s=%q: %w", field.Name, def, err)
		}
		return nil
	})
}

func applyEnv(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fv reflect.Value) error {
		name := field.Tag.Get("env")
		if name == "" {
			return nil
		}
		value, ok := lookupEnv(name)
		if (!ok || value == "") && field.Tag.Get("envAlt") != "" {
			value, ok = lookupEnv(field.Tag.Get("envAlt"))
		}
		if !ok || value == "" {
			return nil
		}
		if err := setField(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
		return nil
	})
}

// walk visits every settable leaf field, recursing into nested structs.
func walk(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fv, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(field, fv); err != nil {
			return err
		}
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// parseBool accepts 1/true/yes/on and 0/false/no/off in any case.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}
