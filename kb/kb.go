package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/uav-offload-sim/model"
)

var (
	// ErrDuplicateID is returned when an entity ID is already registered.
	ErrDuplicateID = errors.New("duplicate entity id")
	// ErrDuplicateLocation is returned when two devices share a location.
	ErrDuplicateLocation = errors.New("duplicate device location")
	// ErrNotFound is returned for unknown entity IDs.
	ErrNotFound = errors.New("entity not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventDeviceAdded EventType = iota
	EventUAVAdded
	EventUAVStatusChanged
	EventReset
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	// ID is the affected entity, empty for EventReset.
	ID string
	// Status is the UAV status after EventUAVStatusChanged.
	Status model.UAVStatus
}

// KnowledgeBase is an in-memory, thread-safe registry of devices and UAVs.
// Iteration order is registration order, which is also the UAV discovery
// order used by reachability queries.
type KnowledgeBase struct {
	mu sync.RWMutex

	devices    map[string]*model.IoTDevice
	deviceList []*model.IoTDevice
	byLocation map[model.Location]*model.IoTDevice

	uavs    map[string]*model.UAV
	uavList []*model.UAV

	subs   []subscription
	nextID int
}

type subscription struct {
	id int
	fn func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		devices:    make(map[string]*model.IoTDevice),
		byLocation: make(map[model.Location]*model.IoTDevice),
		uavs:       make(map[string]*model.UAV),
	}
}

// AddDevice registers d. Device IDs and locations must be unique since tasks
// find their source device by location.
func (kb *KnowledgeBase) AddDevice(d *model.IoTDevice) error {
	kb.mu.Lock()
	if _, exists := kb.devices[d.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: device %q", ErrDuplicateID, d.ID)
	}
	if other, exists := kb.byLocation[d.Location]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: device %q at %s already holds it", ErrDuplicateLocation, other.ID, d.Location)
	}
	kb.devices[d.ID] = d
	kb.byLocation[d.Location] = d
	kb.deviceList = append(kb.deviceList, d)
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventDeviceAdded, ID: d.ID})
	return nil
}

// AddUAV registers u at the end of the discovery order.
func (kb *KnowledgeBase) AddUAV(u *model.UAV) error {
	kb.mu.Lock()
	if _, exists := kb.uavs[u.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: uav %q", ErrDuplicateID, u.ID)
	}
	kb.uavs[u.ID] = u
	kb.uavList = append(kb.uavList, u)
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventUAVAdded, ID: u.ID})
	return nil
}

// GetDevice returns the device with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetDevice(id string) *model.IoTDevice {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.devices[id]
}

// GetUAV returns the UAV with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetUAV(id string) *model.UAV {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.uavs[id]
}

// DeviceAt returns the device registered at loc.
func (kb *KnowledgeBase) DeviceAt(loc model.Location) (*model.IoTDevice, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	d, ok := kb.byLocation[loc]
	return d, ok
}

// ListDevices returns a snapshot slice of all devices in registration order.
func (kb *KnowledgeBase) ListDevices() []*model.IoTDevice {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]*model.IoTDevice(nil), kb.deviceList...)
}

// ListUAVs returns a snapshot slice of all UAVs in discovery order.
func (kb *KnowledgeBase) ListUAVs() []*model.UAV {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]*model.UAV(nil), kb.uavList...)
}

// Reachable returns the operational UAVs whose range covers loc, in
// discovery order.
func (kb *KnowledgeBase) Reachable(loc model.Location) []*model.UAV {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	var res []*model.UAV
	for _, u := range kb.uavList {
		if u.IsOperational() && u.IsInRangeOf(loc) {
			res = append(res, u)
		}
	}
	return res
}

// Counts returns the number of registered devices and UAVs.
func (kb *KnowledgeBase) Counts() (devices, uavs int) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.deviceList), len(kb.uavList)
}

// NotifyUAVStatus tells subscribers a UAV changed status. The KB does not
// watch entities itself; the simulation reports transitions it observes.
func (kb *KnowledgeBase) NotifyUAVStatus(id string, status model.UAVStatus) error {
	kb.mu.RLock()
	_, ok := kb.uavs[id]
	subs := kb.subscribers()
	kb.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: uav %q", ErrNotFound, id)
	}
	notify(subs, Event{Type: EventUAVStatusChanged, ID: id, Status: status})
	return nil
}

// Reset removes every entity. Subscribers are kept.
func (kb *KnowledgeBase) Reset() {
	kb.mu.Lock()
	kb.devices = make(map[string]*model.IoTDevice)
	kb.byLocation = make(map[model.Location]*model.IoTDevice)
	kb.deviceList = nil
	kb.uavs = make(map[string]*model.UAV)
	kb.uavList = nil
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventReset})
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextID++
	id := kb.nextID
	kb.subs = append(kb.subs, subscription{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		for i, s := range kb.subs {
			if s.id == id {
				kb.subs = append(kb.subs[:i], kb.subs[i+1:]...)
				return
			}
		}
	}
}

// subscribers copies the callback list; callers hold kb.mu.
func (kb *KnowledgeBase) subscribers() []func(Event) {
	fns := make([]func(Event), 0, len(kb.subs))
	for _, s := range kb.subs {
		fns = append(fns, s.fn)
	}
	return fns
}

// notify runs callbacks outside the lock to avoid deadlocks.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
