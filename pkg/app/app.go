package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/analytics"
	"github.com/free5gc/go-l2agent/internal/api"
	"github.com/free5gc/go-l2agent/internal/export"
	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/forwarder"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/internal/metrics"
	"github.com/free5gc/go-l2agent/pkg/factory"
)

type L2AgentApp struct {
	cfg        *factory.Config
	wg         sync.WaitGroup
	openDriver func(*sync.WaitGroup, *factory.Fabric) (fabric.Driver, error)

	driver   fabric.Driver
	engine   *forwarder.Engine
	registry *analytics.Registry
	api      *api.Server
	exporter *export.Exporter
}

var _ fabric.EventHandler = (*L2AgentApp)(nil)

func NewApp(cfg *factory.Config) (*L2AgentApp, error) {
	a := &L2AgentApp{
		cfg:        cfg,
		openDriver: NewDriver,
		registry:   analytics.NewRegistry(),
	}
	if err := a.setLogger(cfg.Logger); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *L2AgentApp) setLogger(cfg *factory.Logger) error {
	if cfg == nil || !cfg.Enable {
		logger.MainLog.Infoln("Logger is disabled")
		logger.SetLogLevel(logrus.PanicLevel)
		return nil
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", cfg.Level)
	}
	logger.SetLogLevel(level)
	logger.SetReportCaller(cfg.ReportCaller)
	logger.MainLog.Infof("Log level is set to [%s]", level)
	return nil
}

// Start opens the fabric and brings up every configured service.
func (a *L2AgentApp) Start() error {
	logger.InitLog.Infoln("Starting L2 agent")
	metrics.Register()

	driver, err := a.openDriver(&a.wg, a.cfg.Fabric)
	if err != nil {
		return err
	}
	a.driver = driver
	a.engine = forwarder.NewEngine(driver, forwarder.WithFlowPriority(a.cfg.Forwarder.FlowPriority))

	if err := driver.Start(a); err != nil {
		a.Stop()
		return errors.Wrap(err, "start fabric")
	}

	if a.cfg.Api != nil {
		a.api = api.NewServer(a.cfg.Api.Addr, a.engine, a.registry)
		if err := a.api.Start(&a.wg); err != nil {
			a.Stop()
			return err
		}
	}
	if a.cfg.Export != nil {
		a.exporter = export.NewExporter(a.cfg.Export, a.registry)
		a.exporter.Start(&a.wg)
	}

	logger.InitLog.Infoln("L2 agent started")
	return nil
}

func (a *L2AgentApp) Stop() {
	logger.MainLog.Infoln("Stopping L2 agent")
	if a.exporter != nil {
		a.exporter.Stop()
	}
	if a.api != nil {
		a.api.Stop()
	}
	if a.driver != nil {
		a.driver.Close()
	}
}

// Run starts the agent and blocks until SIGINT or SIGTERM.
func (a *L2AgentApp) Run() error {
	if err := a.Start(); err != nil {
		a.wg.Wait()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.MainLog.Infof("Received signal %v", sig)

	a.Stop()
	a.wg.Wait()
	logger.MainLog.Infoln("L2 agent terminated")
	return nil
}

func (a *L2AgentApp) HandlePacketIn(pkt *fabric.PacketIn) {
	a.engine.HandlePacketIn(pkt)
}

func (a *L2AgentApp) HandleFlowStats(rep fabric.FlowStatsReport) {
	a.registry.Record(rep)
}

func (a *L2AgentApp) Engine() *forwarder.Engine {
	return a.engine
}

func (a *L2AgentApp) Registry() *analytics.Registry {
	return a.registry
}
