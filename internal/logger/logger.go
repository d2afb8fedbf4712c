package logger

import (
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

const (
	FieldCategory   string = "category"
	FieldSwitch     string = "switch"
	FieldListenAddr string = "listen_addr"
	FieldFlow       string = "flow"
)

var (
	log          *logrus.Logger
	MainLog      *logrus.Entry
	InitLog      *logrus.Entry
	CfgLog       *logrus.Entry
	FwderLog     *logrus.Entry
	FabricLog    *logrus.Entry
	AnalyticsLog *logrus.Entry
	ApiLog       *logrus.Entry
	ExportLog    *logrus.Entry
)

func init() {
	log = logrus.New()
	log.SetReportCaller(false)

	log.Formatter = &formatter.Formatter{
		TimestampFormat: time.RFC3339,
		TrimMessages:    true,
		NoFieldsSpace:   true,
		HideKeys:        true,
		FieldsOrder: []string{
			"component",
			FieldCategory,
			FieldSwitch,
			FieldListenAddr,
			FieldFlow,
		},
	}

	MainLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "Main"})
	InitLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "Init"})
	CfgLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "CFG"})
	FwderLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "FWD"})
	FabricLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "Fabric"})
	AnalyticsLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "Stats"})
	ApiLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "API"})
	ExportLog = log.WithFields(logrus.Fields{"component": "L2A", FieldCategory: "Export"})
}

func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

func SetReportCaller(enable bool) {
	log.SetReportCaller(enable)
}
