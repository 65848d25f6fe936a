package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/evse"
	"github.com/evsim-project/evsim-go/pkg/fault"
)

func newTestEngine() *Engine {
	e := New(Config{
		Evse: evse.Config{
			FirmwareVersion: "8.2.1",
			ProtocolVersion: "5.0.1",
			MaxCurrentAmps:  32,
			ServiceLevel:    evse.Level2,
		},
		EV: ev.Config{
			BatteryCapacityKWh: 75,
			MaxChargeRateKW:    7.2,
			InitialSoC:         50,
		},
	})
	e.SetVariance(false)
	return e
}

func TestExecuteRoutesProtocol(t *testing.T) {
	e := newTestEngine()

	assert.Equal(t, "$OK 1 0\r", e.Execute("$GS\r"))
	assert.Equal(t, "$NK\r", e.Execute("$ZZ\r"))
}

func TestConnectAndChargeLifecycle(t *testing.T) {
	e := newTestEngine()

	e.ConnectEV()
	snap := e.Snapshot()
	require.Equal(t, evse.StateConnected, snap.Evse.State)
	assert.Equal(t, "$OK 2 0\r", e.Execute("$GS\r"))

	e.SetChargeRequest(true)
	snap = e.Snapshot()
	require.Equal(t, evse.StateCharging, snap.Evse.State)

	e.Tick(10)
	snap = e.Snapshot()
	assert.Equal(t, 10, snap.Evse.SessionElapsedS)
	assert.Greater(t, snap.EV.SoC, 50.0)
	assert.Greater(t, snap.Evse.SessionEnergyWh, 0.0)

	e.SetChargeRequest(false)
	snap = e.Snapshot()
	assert.Equal(t, evse.StateConnected, snap.Evse.State)

	e.DisconnectEV()
	snap = e.Snapshot()
	assert.Equal(t, evse.StateReady, snap.Evse.State)
}

func TestBatteryFullEndsCharge(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()
	e.SetChargeRequest(true)
	e.SetSoC(99.9)

	// One simulated minute at 7.2 kW into a 75 kWh pack tops it off.
	e.Tick(60)

	snap := e.Snapshot()
	assert.Equal(t, 100.0, snap.EV.SoC)
	assert.False(t, snap.EV.ChargeRequested)
	assert.Equal(t, evse.StateConnected, snap.Evse.State)
}

func TestFaultLifecycle(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()

	e.TriggerFault(fault.GFCITrip)
	snap := e.Snapshot()
	require.Equal(t, evse.StateError, snap.Evse.State)
	assert.Equal(t, uint32(1), snap.FaultCounts[fault.GFCITrip])

	// Enable is refused while faulted.
	assert.Equal(t, "$NK\r", e.Execute("$FE\r"))

	// Clearing while connected returns to connected.
	e.ClearFaults()
	snap = e.Snapshot()
	assert.Equal(t, evse.StateConnected, snap.Evse.State)
	assert.Equal(t, uint32(1), snap.FaultCounts[fault.GFCITrip], "counters survive clears")

	// Clearing while disconnected returns to ready.
	e.TriggerFault(fault.NoGround)
	e.DisconnectEV()
	e.ClearFaults()
	snap = e.Snapshot()
	assert.Equal(t, evse.StateReady, snap.Evse.State)
}

func TestRejectedCommandLeavesStateUntouched(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()
	before := e.Snapshot()

	assert.Equal(t, "$NK\r", e.Execute("$SC 9999\r"))
	assert.Equal(t, "$NK\r", e.Execute("$SL 7\r"))
	assert.Equal(t, "$NK\r", e.Execute("$GS extra\r"))

	after := e.Snapshot()
	assert.Equal(t, before.Evse, after.Evse)
	assert.Equal(t, before.EV, after.EV)
	assert.Equal(t, before.FaultCounts, after.FaultCounts)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	e := newTestEngine()
	events, cancel := e.Subscribe()
	defer cancel()

	e.ConnectEV()
	e.SetChargeRequest(true)

	event := <-events
	assert.Equal(t, evse.StateReady, event.OldState)
	assert.Equal(t, evse.StateConnected, event.NewState)
	assert.Equal(t, ev.PilotConnected, event.Pilot)

	event = <-events
	assert.Equal(t, evse.StateConnected, event.OldState)
	assert.Equal(t, evse.StateCharging, event.NewState)
	assert.Equal(t, evse.VFlagConnected|evse.VFlagCharging, event.VFlags)
	assert.Equal(t, 32, event.CapacityAmps)
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	e := newTestEngine()
	events, cancel := e.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-events
	assert.False(t, open)

	// Later transitions go nowhere but must not panic.
	e.ConnectEV()
}

func TestLaggingSubscriberDoesNotStallEngine(t *testing.T) {
	e := newTestEngine()
	events, cancel := e.Subscribe()
	defer cancel()

	// Nobody drains: generate far more transitions than the buffer holds.
	for i := 0; i < 3*subscriberBuffer; i++ {
		e.ConnectEV()
		e.DisconnectEV()
	}

	assert.LessOrEqual(t, len(events), subscriberBuffer)
	snap := e.Snapshot()
	assert.Equal(t, evse.StateReady, snap.Evse.State)
}

func TestDiodeFailureForcesError(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()
	e.SetDiodeFailure(true)

	snap := e.Snapshot()
	assert.Equal(t, evse.StateError, snap.Evse.State)
	assert.Equal(t, uint32(1), snap.FaultCounts[fault.DiodeCheckFailed])

	// Ticks must not inflate the counter while pilot D persists.
	e.Tick(1)
	e.Tick(1)
	snap = e.Snapshot()
	assert.Equal(t, uint32(1), snap.FaultCounts[fault.DiodeCheckFailed])

	e.SetDiodeFailure(false)
	e.ClearFaults()
	snap = e.Snapshot()
	assert.Equal(t, evse.StateConnected, snap.Evse.State)
}

func TestDirectModeDraw(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()
	e.SetDirectMode(true)
	e.SetDirectCurrent(16)
	e.SetChargeRequest(true)

	e.Tick(1)
	snap := e.Snapshot()
	assert.InDelta(t, 3.84, snap.EV.ChargeRateKW, 1e-9)
	assert.Equal(t, 50.0, snap.EV.SoC, "direct mode must not advance SoC")
	assert.Equal(t, 16000, snap.Evse.ChargeCurrentMA)
}

func TestTickWithoutTrafficAdvancesClock(t *testing.T) {
	e := newTestEngine()
	e.ConnectEV()
	e.SetChargeRequest(true)

	for i := 0; i < 5; i++ {
		e.Tick(1)
	}
	snap := e.Snapshot()
	assert.Equal(t, 5, snap.Evse.SessionElapsedS)

	// Frozen while not charging.
	e.SetChargeRequest(false)
	e.Tick(5)
	snap = e.Snapshot()
	assert.Equal(t, 5, snap.Evse.SessionElapsedS)
}
