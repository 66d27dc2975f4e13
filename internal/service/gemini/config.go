package gemini

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	APIKey string `mapstructure:"APIKey"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.BindEnv("APIKey", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal gemini config: %w", err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = v.GetString("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	return &cfg, nil
}
