// File: port/manager.go
// Author: momentics <momentics@gmail.com>
//
// Manager implements discovery/admission/update/retirement (spec §4.3),
// running the four-step reconciliation algorithm from a background
// ticker goroutine at the fixed interval passed to NewManager, plus
// on explicit Reconcile() calls -- grounded in the teacher's hot-reload
// listener goroutine shape (control/hotreload.go).

package port

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/momentics/xdpcore/api"
)

// ControlNotifier is the subset of openflow.Notifier a Manager needs to
// announce topology changes without importing openflow directly.
type ControlNotifier interface {
	NotifyPortAdd(portID uint32, name string)
	NotifyPortDelete(portID uint32)
	NotifyPortStatusChanged(portID uint32, linkUp bool)
}

// Manager owns the registry of admitted ports and runs reconciliation.
type Manager struct {
	mu       sync.RWMutex
	ports    map[uint32]Port
	byName   map[string]uint32
	nextID   uint32
	pool     api.BufferPool
	notifier ControlNotifier

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	// enumerate is swappable so tests can fake the interface set instead
	// of depending on the host's real NICs.
	enumerate func() ([]net.Interface, error)
}

// NewManager builds a Manager. interval is the background reconciliation
// period (spec §4.3 "periodically from a background thread").
func NewManager(bufPool api.BufferPool, notifier ControlNotifier, interval time.Duration) *Manager {
	return &Manager{
		ports:     make(map[uint32]Port),
		byName:    make(map[string]uint32),
		nextID:    1,
		pool:      bufPool,
		notifier:  notifier,
		interval:  interval,
		stopCh:    make(chan struct{}),
		enumerate: net.Interfaces,
	}
}

// Start launches the background reconciliation ticker.
func (m *Manager) Start() {
	go m.loop()
}

func (m *Manager) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Reconcile()
		case <-m.stopCh:
			return
		}
	}
}

// Stop halts the background ticker. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Reconcile runs the four-step algorithm from spec §4.3.
func (m *Manager) Reconcile() error {
	ifaces, err := m.enumerate()
	if err != nil {
		return fmt.Errorf("port: enumerate interfaces: %w", err)
	}

	system := make(map[string]net.Interface, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		system[iface.Name] = iface
	}

	m.mu.Lock()
	var toDelete []uint32
	for name, id := range m.byName {
		if _, ok := system[name]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	m.mu.Unlock()

	// Step 2: pipeline ports no longer present in system.
	for _, id := range toDelete {
		m.retire(id)
	}

	// Step 3: system interfaces not yet admitted.
	m.mu.RLock()
	var toAdmit []net.Interface
	for name, iface := range system {
		if _, ok := m.byName[name]; !ok {
			toAdmit = append(toAdmit, iface)
		}
	}
	m.mu.RUnlock()

	for _, iface := range toAdmit {
		if _, err := m.admit(iface); err != nil {
			continue // driver open can legitimately fail for non-Ethernet links
		}
	}

	// Step 4: refresh link/admin state on survivors.
	m.mu.RLock()
	survivors := make([]Port, 0, len(m.ports))
	for _, p := range m.ports {
		survivors = append(survivors, p)
	}
	m.mu.RUnlock()

	for _, p := range survivors {
		m.refreshLinkState(p, system)
	}

	return nil
}

func (m *Manager) admit(iface net.Interface) (Port, error) {
	kr, err := NewKernelRingPort(m.allocateID(), iface.Name, m.pool)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.ports[kr.ID()] = kr
	m.byName[iface.Name] = kr.ID()
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.NotifyPortAdd(kr.ID(), iface.Name)
	}
	return kr, nil
}

func (m *Manager) allocateID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// retire detaches and destroys a port that disappeared from the system
// (spec §4.3 step 2: "notify control-manager of port delete, detach from
// any switch, destroy").
func (m *Manager) retire(id uint32) {
	m.mu.Lock()
	p, ok := m.ports[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.ports, id)
	delete(m.byName, p.Name())
	m.mu.Unlock()

	if sp, ok := p.(interface{ Detach() }); ok {
		sp.Detach()
	}
	p.Close()

	if m.notifier != nil {
		m.notifier.NotifyPortDelete(id)
	}
}

func (m *Manager) refreshLinkState(p Port, system map[string]net.Interface) {
	iface, ok := system[p.Name()]
	if !ok {
		return
	}
	linkUp := iface.Flags&net.FlagUp != 0

	sp, ok := p.(interface{ IsLinkUp() bool; SetLinkUp(bool) })
	if !ok {
		return
	}
	if sp.IsLinkUp() != linkUp {
		sp.SetLinkUp(linkUp)
		if m.notifier != nil {
			m.notifier.NotifyPortStatusChanged(p.ID(), linkUp)
		}
	}
}

// Admit installs an already-constructed port directly (used by tests and
// by VirtualLinkPort/PollModePort callers that build ports outside the
// AF_PACKET discovery loop).
func (m *Manager) Admit(p Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ports[p.ID()]; exists {
		return fmt.Errorf("port: id %d already admitted", p.ID())
	}
	m.ports[p.ID()] = p
	m.byName[p.Name()] = p.ID()
	if p.ID() >= m.nextID {
		m.nextID = p.ID() + 1
	}
	return nil
}

// Retire removes an explicitly admitted port (virtual links, poll-mode
// test ports) without requiring a system-interface reconciliation pass.
func (m *Manager) Retire(id uint32) {
	m.retire(id)
}

func (m *Manager) Get(id uint32) (Port, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ports[id]
	return p, ok
}

func (m *Manager) GetByName(name string) (Port, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.ports[id], true
}

func (m *Manager) All() []Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Port, 0, len(m.ports))
	for _, p := range m.ports {
		out = append(out, p)
	}
	return out
}
