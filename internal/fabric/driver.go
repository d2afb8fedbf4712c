package fabric

// EventHandler consumes what the switches report to the controller.
// Implementations must be safe for concurrent use: packet-ins from different
// switches and statistics reports arrive on different goroutines.
type EventHandler interface {
	HandlePacketIn(*PacketIn)
	HandleFlowStats(FlowStatsReport)
}

// Driver is the controller's view of the switching fabric.
type Driver interface {
	Start(EventHandler) error
	Close()

	DecodeFrame([]byte) (*Frame, error)
	UpPorts(SwitchID) []PortID

	InstallFlow(SwitchID, *FlowRule) error
	Transmit(SwitchID, PortID, []byte) error
}
