package utils

import (
	"fmt"

	"github.com/spf13/viper"
)

type config struct {
	TokenPath string `mapstructure:"token"`
	CertPath  string `mapstructure:"cert"`
	KeyPath   string `mapstructure:"key"`
	IP        string `mapstructure:"ip"`
	Resolver  string `mapstructure:"resolver"`
	Endpoint  string `mapstructure:"endpoint"`
	LogFile   string `mapstructure:"log-file"`
	Atomic    bool   `mapstructure:"atomic"`

	// read from TokenPath in PreRun, never logged
	AuthToken string `mapstructure:"-"`
}

var conf = &config{}

func InitConfig() (*config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func GetConfig() *config {
	return conf
}
