package app

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/fabric/p4rt"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/pkg/factory"
)

// NewDriver opens the fabric driver named in the configuration.
func NewDriver(wg *sync.WaitGroup, cfg *factory.Fabric) (fabric.Driver, error) {
	if cfg == nil {
		return nil, errors.Errorf("no fabric config")
	}

	logger.MainLog.Infof("starting fabric driver [%s]", cfg.Driver)
	switch cfg.Driver {
	case "p4rt":
		for _, sw := range cfg.Switches {
			logger.MainLog.Infof("switch %q: device id %d at %q", sw.Name, sw.DeviceID, sw.GRPC)
		}
		driver, err := p4rt.Open(wg, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "open p4rt")
		}
		return driver, nil
	}
	return nil, errors.Errorf("not support fabric driver:%q", cfg.Driver)
}
