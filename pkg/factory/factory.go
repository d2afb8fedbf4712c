package factory

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/free5gc/go-l2agent/internal/logger"
)

// ReadConfig loads, defaults and validates the agent configuration.
func ReadConfig(cfgPath string) (*Config, error) {
	if cfgPath == "" {
		cfgPath = L2aDefaultConfigPath
	}
	logger.CfgLog.Infof("Read config from [%s]", cfgPath)

	content, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read file %q", cfgPath)
	}
	return ParseConfig(content)
}

func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
