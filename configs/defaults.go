package configs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	//go:embed config.example.yaml
	exampleYAML string

	loadDefaults = sync.OnceValues(func() (map[string]any, error) {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(exampleYAML)); err != nil {
			return nil, fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
		}

		values := make(map[string]any, len(v.AllKeys()))
		for _, key := range v.AllKeys() {
			values[key] = v.Get(key)
		}
		return values, nil
	})
)

// SetDefaults registers every key of the embedded example config as a viper
// default, so a partial config file or bare flags still produce a complete Config.
func SetDefaults(v *viper.Viper) error {
	values, err := loadDefaults()
	if err != nil {
		return err
	}

	for key, value := range values {
		v.SetDefault(key, value)
	}
	return nil
}

// DefaultConfig decodes a viper instance that holds nothing but the embedded
// defaults, the same ones SetDefaults installs.
func DefaultConfig() (Config, error) {
	v := viper.New()
	if err := SetDefaults(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode embedded config.example.yaml: %w", err)
	}
	return cfg, nil
}

func MustDefaultConfig() Config {
	cfg, err := DefaultConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}
