package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	configFilePath string
	parseOnce      sync.Once
)

// MustNew panics when the configuration cannot be loaded. Intended for
// process startup where a missing credential should stop the program.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads a config struct from the process environment, optionally seeded
// from a config file (-config flag, or ./config.yaml when present).
// Environment variables that are already set always win over file values.
func New[T any](prefix string) (*T, error) {
	filepath := resolveConfigPath()
	if filepath != "" {
		if err := exportFile(filepath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if err := exportFileIfExists("config.yaml"); err != nil {
		return nil, fmt.Errorf("failed to load default config file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

func resolveConfigPath() string {
	parseOnce.Do(func() {
		if flag.Lookup("config") == nil {
			flag.StringVar(&configFilePath, "config", "", "path to config file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(configFilePath)
}

func exportFileIfExists(filepath string) error {
	info, err := os.Stat(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportFile(filepath)
}

// exportFile promotes file settings into the environment so envconfig sees a
// single source. Keys already present in the environment are left alone,
// which keeps env vars ahead of file values.
func exportFile(filepath string) error {
	v := viper.New()
	v.SetConfigFile(filepath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(v.Get(key))); err != nil {
			return err
		}
	}

	return nil
}
