package forwarder

import (
	"sync"

	"github.com/free5gc/go-l2agent/internal/fabric"
)

// switchTable holds the learned addresses of one switch.
type switchTable struct {
	mu    sync.RWMutex
	ports map[fabric.HardwareAddr]fabric.PortID
}

// AddressTable maps (switch, hardware address) to the port the address was
// first seen on. Entries are never overwritten nor removed: duplicates of a
// flooded frame coming back on other ports must not move a correct mapping.
type AddressTable struct {
	mu       sync.RWMutex
	switches map[fabric.SwitchID]*switchTable
}

func NewAddressTable() *AddressTable {
	return &AddressTable{
		switches: make(map[fabric.SwitchID]*switchTable),
	}
}

func (t *AddressTable) getSwitch(sw fabric.SwitchID) *switchTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.switches[sw]
}

func (t *AddressTable) getOrCreateSwitch(sw fabric.SwitchID) *switchTable {
	if st := t.getSwitch(sw); st != nil {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// another learner may have created it between the two locks
	if st, ok := t.switches[sw]; ok {
		return st
	}
	st := &switchTable{
		ports: make(map[fabric.HardwareAddr]fabric.PortID),
	}
	t.switches[sw] = st
	return st
}

// Learn records that addr is reachable through port on sw, unless a mapping
// for (sw, addr) already exists. It reports whether a new entry was created.
func (t *AddressTable) Learn(sw fabric.SwitchID, addr fabric.HardwareAddr, port fabric.PortID) bool {
	st := t.getOrCreateSwitch(sw)

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.ports[addr]; ok {
		return false
	}
	st.ports[addr] = port
	return true
}

func (t *AddressTable) Lookup(sw fabric.SwitchID, addr fabric.HardwareAddr) (fabric.PortID, bool) {
	st := t.getSwitch(sw)
	if st == nil {
		return 0, false
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	port, ok := st.ports[addr]
	return port, ok
}

// Len returns the number of addresses learned on sw.
func (t *AddressTable) Len(sw fabric.SwitchID) int {
	st := t.getSwitch(sw)
	if st == nil {
		return 0
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.ports)
}
