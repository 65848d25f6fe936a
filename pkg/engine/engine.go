// Package engine owns the emulator state aggregate. Every mutation - a
// protocol command, a simulation tick or an operator action - runs under one
// exclusive lock, and every committed state transition is published to
// subscribers without ever blocking the engine.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/evse"
	"github.com/evsim-project/evsim-go/pkg/fault"
	"github.com/evsim-project/evsim-go/pkg/log"
	"github.com/evsim-project/evsim-go/pkg/rapi"
)

// subscriberBuffer is the per-subscriber event channel capacity. A lagging
// subscriber loses events rather than stalling the engine.
const subscriberBuffer = 16

// DefaultTickInterval is the simulation clock period.
const DefaultTickInterval = 1 * time.Second

// Event describes one committed state transition.
type Event struct {
	// Time the transition was committed.
	Time time.Time
	// OldState and NewState are the effective states around the change.
	OldState evse.State
	NewState evse.State
	// Pilot is the J1772 pilot state the vehicle presented.
	Pilot ev.PilotState
	// CapacityAmps is the advertised current capacity.
	CapacityAmps int
	// VFlags is the status word after the change.
	VFlags uint16
}

// Config assembles an engine.
type Config struct {
	// Evse configures the station model.
	Evse evse.Config
	// EV configures the vehicle model.
	EV ev.Config
	// Logger receives protocol and state capture events. Nil disables
	// capture.
	Logger log.Logger
}

// Engine holds the station, vehicle and fault state behind a single lock.
type Engine struct {
	mu      sync.Mutex
	machine *evse.Machine
	vehicle *ev.Simulator
	faults  *fault.Registry
	handler *rapi.Handler

	logger log.Logger

	subMu     sync.Mutex
	subs      map[uint64]chan Event
	nextSubID uint64
}

// New creates an engine with a fresh fault registry, station and vehicle.
func New(cfg Config) *Engine {
	faults := fault.NewRegistry()
	machine := evse.NewMachine(cfg.Evse, faults)
	vehicle := ev.NewSimulator(cfg.EV)
	return &Engine{
		machine: machine,
		vehicle: vehicle,
		faults:  faults,
		handler: rapi.NewHandler(machine, vehicle, faults),
		logger:  log.OrNoop(cfg.Logger),
		subs:    make(map[uint64]chan Event),
	}
}

// FirmwareVersion returns the firmware string announced on boot.
func (e *Engine) FirmwareVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.FirmwareVersion()
}

// Execute runs one protocol line through the command handler and returns the
// full wire response. Serial clients and API callers route through here
// equally.
func (e *Engine) Execute(line string) string {
	var response string
	e.withState(func() {
		response = e.handler.Process(line)
	})
	return response
}

// Tick advances the simulation by dt seconds: the vehicle draws energy, the
// station meters it and the thermal model moves. Ticks fire even with no
// protocol traffic.
func (e *Engine) Tick(dt float64) {
	e.withState(func() {
		offered := 0
		if e.machine.State() == evse.StateCharging {
			offered = e.machine.CurrentCapacity()
		}
		rate := e.vehicle.Advance(offered, e.machine.VoltageMV(), dt)
		e.machine.Advance(rate, dt)
	})
}

// Run drives the simulation clock until the context is cancelled. The tick
// dt is measured wall time, so a delayed tick still accounts for the full
// interval.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

// ConnectEV plugs the simulated vehicle in.
func (e *Engine) ConnectEV() {
	e.withState(func() { e.vehicle.Connect() })
}

// DisconnectEV unplugs the simulated vehicle.
func (e *Engine) DisconnectEV() {
	e.withState(func() { e.vehicle.Disconnect() })
}

// SetChargeRequest starts or stops the vehicle's energy request.
func (e *Engine) SetChargeRequest(want bool) {
	e.withState(func() { e.vehicle.RequestCharge(want) })
}

// SetSoC overrides the vehicle's state of charge.
func (e *Engine) SetSoC(soc float64) {
	e.withState(func() { e.vehicle.SetSoC(soc) })
}

// SetDirectMode toggles the vehicle's fixed current draw mode.
func (e *Engine) SetDirectMode(direct bool) {
	e.withState(func() { e.vehicle.SetDirectMode(direct) })
}

// SetDirectCurrent sets the fixed current draw in amps.
func (e *Engine) SetDirectCurrent(amps float64) {
	e.withState(func() { e.vehicle.SetDirectCurrent(amps) })
}

// SetVariance toggles the vehicle's random rate variation.
func (e *Engine) SetVariance(enabled bool) {
	e.withState(func() { e.vehicle.SetVariance(enabled) })
}

// SetDiodeFailure injects or clears a vehicle diode check failure (pilot
// state D).
func (e *Engine) SetDiodeFailure(failed bool) {
	e.withState(func() { e.vehicle.SetDiodeCheckFailed(failed) })
}

// TriggerFault activates a fault condition and increments its counter.
func (e *Engine) TriggerFault(f fault.Flag) {
	e.withState(func() {
		e.faults.Trigger(f)
		e.logFaultChange(f.String(), "triggered")
	})
}

// ClearFault deactivates a fault condition.
func (e *Engine) ClearFault(f fault.Flag) {
	e.withState(func() {
		e.faults.Clear(f)
		e.logFaultChange(f.String(), "cleared")
	})
}

// ClearFaults deactivates every fault condition.
func (e *Engine) ClearFaults() {
	e.withState(func() {
		e.faults.ClearAll()
		e.logFaultChange("all", "cleared")
	})
}

// SetSensorErrors injects temperature sensor read failures.
func (e *Engine) SetSensorErrors(ds, mcp bool) {
	e.withState(func() { e.machine.SetSensorErrors(ds, mcp) })
}

// Snapshot is a consistent copy of the whole aggregate.
type Snapshot struct {
	Evse        evse.Snapshot
	EV          ev.Snapshot
	FaultActive fault.Flag
	FaultCounts map[fault.Flag]uint32
}

// Snapshot returns a consistent read-only copy of the state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Evse:        e.machine.Snapshot(),
		EV:          e.vehicle.Snapshot(),
		FaultActive: e.faults.Active(),
		FaultCounts: e.faults.Counts(),
	}
}

// Subscribe registers a transition listener. The returned cancel function
// releases the subscription and closes the channel. Events are dropped for
// subscribers that fall more than subscriberBuffer events behind.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

// withState runs fn under the state lock, reconciles the station state with
// the pilot the vehicle now presents and publishes a transition event if the
// effective state changed.
func (e *Engine) withState(fn func()) {
	e.mu.Lock()

	old := e.machine.State()
	fn()
	e.machine.ApplyPilot(e.vehicle.Pilot())
	next := e.machine.State()

	var event Event
	changed := next != old
	if changed {
		e.machine.NoteTransition(old, next)
		event = Event{
			Time:         time.Now(),
			OldState:     old,
			NewState:     next,
			Pilot:        e.vehicle.Pilot(),
			CapacityAmps: e.machine.CurrentCapacity(),
			VFlags:       e.machine.VFlags(),
		}
	}
	e.mu.Unlock()

	if changed {
		e.publish(event)
		e.logger.Log(log.Event{
			Timestamp: event.Time,
			Direction: log.DirectionOut,
			Layer:     log.LayerEngine,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityEvse,
				OldState: old.String(),
				NewState: next.String(),
			},
		})
	}
}

// publish delivers an event to every subscriber without blocking.
func (e *Engine) publish(event Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
			// Subscriber lagging, drop.
		}
	}
}

// logFaultChange records a fault registry change. Called under the state
// lock.
func (e *Engine) logFaultChange(name, action string) {
	e.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityFault,
			NewState: name,
			Reason:   action,
		},
	})
}
