package forwarder

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/internal/metrics"
)

type flowProgrammer interface {
	InstallFlow(fabric.SwitchID, *fabric.FlowRule) error
}

// FlowInstaller hands flow rules to the fabric. It is best effort: a failed
// install is logged and returned, never retried.
type FlowInstaller struct {
	programmer flowProgrammer
	log        *logrus.Entry
}

func NewFlowInstaller(p flowProgrammer) *FlowInstaller {
	return &FlowInstaller{
		programmer: p,
		log:        logger.FwderLog,
	}
}

func (i *FlowInstaller) Install(sw fabric.SwitchID, rule *fabric.FlowRule) error {
	err := i.programmer.InstallFlow(sw, rule)
	if err != nil {
		metrics.RecordFlowInstall(metrics.OutcomeFailure)
		err = errors.Wrapf(err, "switch %d: program %s", sw, rule)
		i.log.WithField(logger.FieldSwitch, sw).Warnf("failed to program the flow: %v", err)
		return err
	}
	metrics.RecordFlowInstall(metrics.OutcomeSuccess)
	i.log.WithField(logger.FieldSwitch, sw).Infof("Installed %s", rule)
	return nil
}
