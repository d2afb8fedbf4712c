package factory

import (
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/free5gc/go-l2agent/internal/logger"
)

const (
	L2aDefaultConfigPath     = "./config/l2agentcfg.yaml"
	L2aExpectedConfigVersion = "1.0.0"
	L2aDefaultFlowPriority   = 1
	L2aDefaultStatsInterval  = 5 * time.Second
	L2aDefaultExportInterval = 10 * time.Second
	L2aDefaultElectionID     = 1
	L2aDefaultL2Table        = "IngressPipeImpl.l2_exact_table"
	L2aDefaultOutputAction   = "IngressPipeImpl.set_egress_port"
	L2aDefaultPacketInMeta   = "packet_in"
	L2aDefaultPacketOutMeta  = "packet_out"
	L2aDefaultExportChannel  = "l2agent.analytics"
	L2aDefaultFabricDriver   = "p4rt"
	L2aMaxPortNumber         = 511
	L2aMinFlowPriority       = 1
)

type Config struct {
	Version     string     `yaml:"version"     valid:"required,in(1.0.0)"`
	Description string     `yaml:"description" valid:"optional"`
	Forwarder   *Forwarder `yaml:"forwarder"   valid:"optional"`
	Fabric      *Fabric    `yaml:"fabric"      valid:"required"`
	Api         *Api       `yaml:"api"         valid:"optional"`
	Export      *Export    `yaml:"export"      valid:"optional"`
	Logger      *Logger    `yaml:"logger"      valid:"required"`
}

type Forwarder struct {
	FlowPriority uint16 `yaml:"flowPriority" valid:"optional"`
}

type Fabric struct {
	Driver        string        `yaml:"driver"        valid:"optional,in(p4rt)"`
	P4Info        string        `yaml:"p4info"        valid:"required"`
	DeviceConfig  string        `yaml:"deviceConfig"  valid:"optional"`
	ElectionID    uint64        `yaml:"electionID"    valid:"optional"`
	StatsInterval time.Duration `yaml:"statsInterval" valid:"optional"`
	L2Table       string        `yaml:"l2Table"       valid:"optional"`
	OutputAction  string        `yaml:"outputAction"  valid:"optional"`
	PacketInMeta  string        `yaml:"packetInMeta"  valid:"optional"`
	PacketOutMeta string        `yaml:"packetOutMeta" valid:"optional"`
	Switches      []Switch      `yaml:"switches"      valid:"required"`
}

// Switch is one P4Runtime target. Ports lists the administratively up ports;
// link state is not tracked and floods go to every listed port.
type Switch struct {
	Name     string   `yaml:"name"     valid:"required"`
	DeviceID uint64   `yaml:"deviceID" valid:"optional"`
	GRPC     string   `yaml:"grpc"     valid:"required,dialstring"`
	Ports    []uint32 `yaml:"ports"    valid:"optional"`
}

type Api struct {
	Addr string `yaml:"addr" valid:"required,dialstring"`
}

type Export struct {
	Redis    *Redis        `yaml:"redis"    valid:"required"`
	Interval time.Duration `yaml:"interval" valid:"optional"`
}

type Redis struct {
	Addr     string `yaml:"addr"     valid:"required,dialstring"`
	Password string `yaml:"password" valid:"optional"`
	DB       int    `yaml:"db"       valid:"optional"`
	Channel  string `yaml:"channel"  valid:"optional"`
}

type Logger struct {
	Enable       bool   `yaml:"enable"       valid:"optional"`
	Level        string `yaml:"level"        valid:"required,in(trace|debug|info|warn|error|fatal|panic)"`
	ReportCaller bool   `yaml:"reportCaller" valid:"optional"`
}

func (c *Config) GetVersion() string {
	return c.Version
}

// Validate checks the struct tags first and then the constraints the tags
// cannot express.
func (c *Config) Validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return errors.Wrap(err, "config validate")
	}

	seen := make(map[uint64]string)
	for _, sw := range c.Fabric.Switches {
		if other, ok := seen[sw.DeviceID]; ok {
			return errors.Errorf("switch %q reuses deviceID %d of switch %q", sw.Name, sw.DeviceID, other)
		}
		seen[sw.DeviceID] = sw.Name
		if len(sw.Ports) == 0 {
			return errors.Errorf("switch %q: no ports configured", sw.Name)
		}
		for _, p := range sw.Ports {
			if p > L2aMaxPortNumber {
				return errors.Errorf("switch %q: port %d out of range [0, %d]", sw.Name, p, L2aMaxPortNumber)
			}
		}
	}
	if c.Fabric.StatsInterval < 0 {
		return errors.Errorf("fabric statsInterval must not be negative: %s", c.Fabric.StatsInterval)
	}
	if c.Export != nil && c.Export.Interval < 0 {
		return errors.Errorf("export interval must not be negative: %s", c.Export.Interval)
	}
	return nil
}

// SetDefaults fills the optional values left empty in the YAML file.
func (c *Config) SetDefaults() {
	if c.Forwarder == nil {
		c.Forwarder = &Forwarder{}
	}
	if c.Forwarder.FlowPriority < L2aMinFlowPriority {
		c.Forwarder.FlowPriority = L2aDefaultFlowPriority
	}

	f := c.Fabric
	if f == nil {
		return
	}
	if f.Driver == "" {
		f.Driver = L2aDefaultFabricDriver
	}
	if f.ElectionID == 0 {
		f.ElectionID = L2aDefaultElectionID
	}
	if f.StatsInterval == 0 {
		f.StatsInterval = L2aDefaultStatsInterval
	}
	if f.L2Table == "" {
		f.L2Table = L2aDefaultL2Table
	}
	if f.OutputAction == "" {
		f.OutputAction = L2aDefaultOutputAction
	}
	if f.PacketInMeta == "" {
		f.PacketInMeta = L2aDefaultPacketInMeta
	}
	if f.PacketOutMeta == "" {
		f.PacketOutMeta = L2aDefaultPacketOutMeta
	}

	if c.Export != nil {
		if c.Export.Interval == 0 {
			c.Export.Interval = L2aDefaultExportInterval
		}
		if c.Export.Redis != nil && c.Export.Redis.Channel == "" {
			c.Export.Redis.Channel = L2aDefaultExportChannel
		}
	}
}

func (c *Config) Print() {
	spew.Config.Indent = "\t"
	str := spew.Sdump(c)
	logger.CfgLog.Infof("==================================================")
	logger.CfgLog.Infof("%s", str)
	logger.CfgLog.Infof("==================================================")
}
