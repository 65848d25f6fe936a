package ev

import (
	"math"
	"testing"
)

// newTestSimulator returns a vehicle with variance disabled so rates are
// exact.
func newTestSimulator(cfg Config) *Simulator {
	s := NewSimulator(cfg)
	s.SetVariance(false)
	return s
}

func TestPilotStates(t *testing.T) {
	s := newTestSimulator(Config{InitialSoC: 50})

	if got := s.Pilot(); got != PilotDisconnected {
		t.Errorf("Pilot() = %v before connect, want A", got)
	}

	s.Connect()
	if got := s.Pilot(); got != PilotConnected {
		t.Errorf("Pilot() = %v after connect, want B", got)
	}

	s.RequestCharge(true)
	if got := s.Pilot(); got != PilotCharging {
		t.Errorf("Pilot() = %v after charge request, want C", got)
	}

	s.SetDiodeCheckFailed(true)
	if got := s.Pilot(); got != PilotVentilation {
		t.Errorf("Pilot() = %v with diode failure, want D", got)
	}

	s.SetDiodeCheckFailed(false)
	s.Disconnect()
	if got := s.Pilot(); got != PilotDisconnected {
		t.Errorf("Pilot() = %v after disconnect, want A", got)
	}
	if s.ChargeRequested() {
		t.Error("disconnect should clear the charge request")
	}
}

func TestRequestChargeWhileDisconnected(t *testing.T) {
	s := newTestSimulator(Config{InitialSoC: 50})
	s.RequestCharge(true)
	if s.ChargeRequested() {
		t.Error("charge request without a connected vehicle should be ignored")
	}
}

func TestAdvanceBatteryMode(t *testing.T) {
	s := newTestSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         50,
	})
	s.Connect()
	s.RequestCharge(true)

	// 32 A at 240 V offers 7.68 kW, so the onboard charger limits to 7.2.
	rate := s.Advance(32, 240000, 1.0)
	if math.Abs(rate-7.2) > 1e-9 {
		t.Errorf("rate = %v kW, want 7.2", rate)
	}

	// One second at 7.2 kW on a 75 kWh pack.
	wantSoC := 50 + 7.2/3600.0/75.0*100.0
	if math.Abs(s.SoC()-wantSoC) > 1e-9 {
		t.Errorf("SoC = %v, want %v", s.SoC(), wantSoC)
	}
}

func TestAdvanceLimitedByOffer(t *testing.T) {
	s := newTestSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         50,
	})
	s.Connect()
	s.RequestCharge(true)

	// 16 A at 240 V offers only 3.84 kW.
	rate := s.Advance(16, 240000, 1.0)
	if math.Abs(rate-3.84) > 1e-9 {
		t.Errorf("rate = %v kW, want 3.84", rate)
	}
}

func TestTaperAboveEighty(t *testing.T) {
	s := newTestSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         90,
		TaperEnabled:       true,
	})
	s.Connect()
	s.RequestCharge(true)

	// At 90% SoC the taper factor is 1 - (10/20)*0.5 = 0.75.
	rate := s.Advance(32, 240000, 1.0)
	if math.Abs(rate-7.2*0.75) > 1e-6 {
		t.Errorf("rate = %v kW at 90%% SoC, want %v", rate, 7.2*0.75)
	}
}

func TestNoTaperWhenDisabled(t *testing.T) {
	s := newTestSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         90,
	})
	s.Connect()
	s.RequestCharge(true)

	rate := s.Advance(32, 240000, 1.0)
	if math.Abs(rate-7.2) > 1e-9 {
		t.Errorf("rate = %v kW with taper disabled, want 7.2", rate)
	}
}

func TestFullBatteryStopsCharge(t *testing.T) {
	s := newTestSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         99.9999,
	})
	s.Connect()
	s.RequestCharge(true)

	// A long tick pushes the pack past full.
	rate := s.Advance(32, 240000, 3600)
	if rate != 0 {
		t.Errorf("rate = %v kW when the pack fills, want 0", rate)
	}
	if s.SoC() != 100 {
		t.Errorf("SoC = %v, want exactly 100", s.SoC())
	}
	if s.ChargeRequested() {
		t.Error("filling up should clear the charge request")
	}
	if got := s.Pilot(); got != PilotConnected {
		t.Errorf("Pilot() = %v with full pack, want B", got)
	}
}

func TestDirectMode(t *testing.T) {
	s := newTestSimulator(Config{InitialSoC: 50})
	s.Connect()
	s.RequestCharge(true)
	s.SetDirectMode(true)
	s.SetDirectCurrent(16)

	rate := s.Advance(32, 240000, 1.0)
	if math.Abs(rate-3.84) > 1e-9 {
		t.Errorf("rate = %v kW in direct mode, want 3.84", rate)
	}
	if s.SoC() != 50 {
		t.Errorf("SoC = %v, direct mode must not advance SoC", s.SoC())
	}
}

func TestDirectModeOverdrawClamp(t *testing.T) {
	s := newTestSimulator(Config{InitialSoC: 50})
	s.Connect()
	s.RequestCharge(true)
	s.SetDirectMode(true)
	s.SetDirectCurrent(100)

	// Bounded to 110% of the 32 A offer.
	rate := s.Advance(32, 240000, 1.0)
	want := 32 * 1.1 * 240 / 1000.0
	if math.Abs(rate-want) > 1e-9 {
		t.Errorf("rate = %v kW, want %v", rate, want)
	}
}

func TestVarianceBounds(t *testing.T) {
	s := NewSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         50,
	})
	s.Connect()
	s.RequestCharge(true)

	for i := 0; i < 200; i++ {
		rate := s.Advance(32, 240000, 0.001)
		if rate > 7.2 || rate < 7.2*(1-varianceRange) {
			t.Fatalf("battery-mode rate %v outside [%v, 7.2]", rate, 7.2*(1-varianceRange))
		}
	}

	s.SetDirectMode(true)
	s.SetDirectCurrent(16)
	for i := 0; i < 200; i++ {
		rate := s.Advance(32, 240000, 0.001)
		if rate > 3.84*(1+varianceRange) || rate < 3.84*(1-varianceRange) {
			t.Fatalf("direct-mode rate %v outside ±1%% of 3.84", rate)
		}
	}
}

func TestAdvanceVarianceDeterministic(t *testing.T) {
	s := NewSimulator(Config{
		BatteryCapacityKWh: 75,
		MaxChargeRateKW:    7.2,
		InitialSoC:         50,
	})
	s.rand = func() float64 { return 1.0 }
	s.Connect()
	s.RequestCharge(true)

	rate := s.Advance(32, 240000, 1.0)
	if math.Abs(rate-7.2*0.99) > 1e-9 {
		t.Errorf("rate = %v kW with maximal variance draw, want %v", rate, 7.2*0.99)
	}
}

func TestSetSoCClamps(t *testing.T) {
	s := newTestSimulator(Config{InitialSoC: 50})
	s.SetSoC(-5)
	if s.SoC() != 0 {
		t.Errorf("SoC = %v after SetSoC(-5), want 0", s.SoC())
	}
	s.SetSoC(150)
	if s.SoC() != 100 {
		t.Errorf("SoC = %v after SetSoC(150), want 100", s.SoC())
	}
}
