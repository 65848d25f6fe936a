package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/evsim-project/evsim-go/pkg/engine"
	"github.com/evsim-project/evsim-go/pkg/fault"
)

// Console is the interactive operator surface. It manipulates the vehicle
// and station models directly, the way a person plugging in and unplugging
// a car would, and passes raw RAPI lines through to the protocol handler.
type Console struct {
	eng *engine.Engine
	rl  *readline.Instance
}

// NewConsole creates the operator console.
func NewConsole(eng *engine.Engine) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "evsim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{eng: eng, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt. Route log
// output here to keep the input line intact.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads operator commands until quit, EOF or context cancellation.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		// Raw protocol lines go straight to the handler.
		if strings.HasPrefix(input, "$") {
			response := c.eng.Execute(input + "\r")
			fmt.Fprintln(c.rl.Stdout(), strings.TrimSuffix(response, "\r"))
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "connect", "plug":
			c.eng.ConnectEV()
			fmt.Fprintln(c.rl.Stdout(), "Vehicle connected")

		case "disconnect", "unplug":
			c.eng.DisconnectEV()
			fmt.Fprintln(c.rl.Stdout(), "Vehicle disconnected")

		case "charge":
			c.cmdCharge(args)

		case "soc":
			c.cmdSoC(args)

		case "direct":
			c.cmdDirect(args)

		case "amps":
			c.cmdAmps(args)

		case "variance":
			c.cmdVariance(args)

		case "diode":
			c.cmdDiode(args)

		case "fault":
			c.cmdFault(args)

		case "clear":
			c.cmdClear(args)

		case "sensors":
			c.cmdSensors(args)

		case "status", "s":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Emulator Commands:
  Vehicle:
    connect              - Plug in the vehicle
    disconnect           - Unplug the vehicle
    charge start|stop    - Request or end charging
    soc <percent>        - Set the battery state of charge
    direct on|off        - Bypass the battery model (fixed current draw)
    amps <a>             - Set the direct-mode current draw
    variance on|off      - Toggle charge rate variance
    diode fail|ok        - Fail or restore the pilot diode check

  Station:
    fault <name>         - Trigger a fault (gfci, relay, ground, temp, selftest)
    clear [name]         - Clear one fault, or all active faults
    sensors <ds|mcp|both|none> - Mark temperature sensors failed

  General:
    status               - Show emulator state
    $<CC> [params]       - Send a raw protocol line (e.g. $GS, $SC 20)
    help                 - Show this help
    quit                 - Exit`)
}

func (c *Console) cmdCharge(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: charge start|stop")
		return
	}
	switch args[0] {
	case "start":
		c.eng.SetChargeRequest(true)
		fmt.Fprintln(c.rl.Stdout(), "Charge requested")
	case "stop":
		c.eng.SetChargeRequest(false)
		fmt.Fprintln(c.rl.Stdout(), "Charge request cleared")
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: charge start|stop")
	}
}

func (c *Console) cmdSoC(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: soc <percent>")
		return
	}
	soc, err := strconv.ParseFloat(args[0], 64)
	if err != nil || soc < 0 || soc > 100 {
		fmt.Fprintf(c.rl.Stdout(), "Invalid state of charge: %s\n", args[0])
		return
	}
	c.eng.SetSoC(soc)
	fmt.Fprintf(c.rl.Stdout(), "State of charge set to %.1f%%\n", soc)
}

func (c *Console) cmdDirect(args []string) {
	on, ok := parseOnOff(args)
	if !ok {
		fmt.Fprintln(c.rl.Stdout(), "Usage: direct on|off")
		return
	}
	c.eng.SetDirectMode(on)
	if on {
		fmt.Fprintln(c.rl.Stdout(), "Direct mode on (battery model bypassed)")
	} else {
		fmt.Fprintln(c.rl.Stdout(), "Direct mode off")
	}
}

func (c *Console) cmdAmps(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: amps <a>")
		return
	}
	amps, err := strconv.ParseFloat(args[0], 64)
	if err != nil || amps < 0 {
		fmt.Fprintf(c.rl.Stdout(), "Invalid current: %s\n", args[0])
		return
	}
	c.eng.SetDirectCurrent(amps)
	fmt.Fprintf(c.rl.Stdout(), "Direct-mode draw set to %.1f A\n", amps)
}

func (c *Console) cmdVariance(args []string) {
	on, ok := parseOnOff(args)
	if !ok {
		fmt.Fprintln(c.rl.Stdout(), "Usage: variance on|off")
		return
	}
	c.eng.SetVariance(on)
	fmt.Fprintf(c.rl.Stdout(), "Variance %s\n", args[0])
}

func (c *Console) cmdDiode(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: diode fail|ok")
		return
	}
	switch args[0] {
	case "fail":
		c.eng.SetDiodeFailure(true)
		fmt.Fprintln(c.rl.Stdout(), "Diode check failing")
	case "ok", "clear":
		c.eng.SetDiodeFailure(false)
		fmt.Fprintln(c.rl.Stdout(), "Diode check restored")
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: diode fail|ok")
	}
}

func (c *Console) cmdFault(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: fault <gfci|relay|ground|diode|temp|selftest>")
		return
	}
	f, ok := fault.ParseFlag(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown fault: %s\n", args[0])
		return
	}
	c.eng.TriggerFault(f)
	fmt.Fprintf(c.rl.Stdout(), "Fault triggered: %s\n", f)
}

func (c *Console) cmdClear(args []string) {
	if len(args) == 0 || args[0] == "all" {
		c.eng.ClearFaults()
		fmt.Fprintln(c.rl.Stdout(), "All faults cleared")
		return
	}
	f, ok := fault.ParseFlag(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown fault: %s\n", args[0])
		return
	}
	c.eng.ClearFault(f)
	fmt.Fprintf(c.rl.Stdout(), "Fault cleared: %s\n", f)
}

func (c *Console) cmdSensors(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: sensors <ds|mcp|both|none>")
		return
	}
	switch args[0] {
	case "ds":
		c.eng.SetSensorErrors(true, false)
	case "mcp":
		c.eng.SetSensorErrors(false, true)
	case "both":
		c.eng.SetSensorErrors(true, true)
	case "none":
		c.eng.SetSensorErrors(false, false)
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: sensors <ds|mcp|both|none>")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Sensor errors: %s\n", args[0])
}

func (c *Console) cmdStatus() {
	snap := c.eng.Snapshot()
	out := c.rl.Stdout()

	fmt.Fprintln(out, "\nEmulator Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  State:          %s\n", snap.Evse.State)
	fmt.Fprintf(out, "  Pilot:          %c\n", snap.EV.Pilot)
	fmt.Fprintf(out, "  Capacity:       %d A (max %d A, level %s)\n",
		snap.Evse.CapacityAmps, snap.Evse.MaxAmps, snap.Evse.ServiceLevel)
	fmt.Fprintf(out, "  Charge current: %.1f A\n", float64(snap.Evse.ChargeCurrentMA)/1000)
	fmt.Fprintf(out, "  Session:        %ds, %.1f Wh\n",
		snap.Evse.SessionElapsedS, snap.Evse.SessionEnergyWh)
	fmt.Fprintf(out, "  Lifetime:       %.3f kWh\n", snap.Evse.LifetimeWh/1000)
	fmt.Fprintf(out, "  Temperature:    %.1f C\n", float64(snap.Evse.TempDSDeciC)/10)

	fmt.Fprintf(out, "  Vehicle:        connected=%v requested=%v\n",
		snap.EV.Connected, snap.EV.ChargeRequested)
	fmt.Fprintf(out, "  SoC:            %.1f%%\n", snap.EV.SoC)
	fmt.Fprintf(out, "  Charge rate:    %.2f kW\n", snap.EV.ChargeRateKW)
	if snap.EV.DirectMode {
		fmt.Fprintf(out, "  Direct mode:    on (%.1f A)\n", snap.EV.DirectCurrentAmps)
	}

	if snap.FaultActive != 0 {
		fmt.Fprintf(out, "  Active faults:  %s\n", snap.FaultActive)
	} else {
		fmt.Fprintln(out, "  Active faults:  none")
	}
	for f, n := range snap.FaultCounts {
		if n > 0 {
			fmt.Fprintf(out, "    %-18s %d\n", f, n)
		}
	}
	fmt.Fprintln(out)
}

func parseOnOff(args []string) (bool, bool) {
	if len(args) < 1 {
		return false, false
	}
	switch args[0] {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}
