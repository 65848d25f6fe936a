package serial

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/evsim-project/evsim-go/pkg/connection"
	"github.com/evsim-project/evsim-go/pkg/engine"
	"github.com/evsim-project/evsim-go/pkg/log"
	"github.com/evsim-project/evsim-go/pkg/rapi"
)

// PortConfig assembles a Port.
type PortConfig struct {
	// Transport is the byte-channel backend.
	Transport Transport

	// Engine executes the protocol lines.
	Engine *engine.Engine

	// Logger receives capture events. Nil disables capture.
	Logger log.Logger

	// Backoff tunes the reopen loop. Zero values use the defaults.
	Backoff connection.Config
}

// Port runs the serial side of the emulator: it opens sessions on the
// transport, pumps lines through the engine, and pushes asynchronous
// notifications out. Transport failures feed the backoff loop; the engine
// state survives every reconnect.
type Port struct {
	transport Transport
	engine    *engine.Engine
	logger    log.Logger
	backoff   *connection.Backoff

	mu      sync.Mutex
	session Session

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewPort creates a Port. Call Start to begin serving.
func NewPort(cfg PortConfig) *Port {
	return &Port{
		transport: cfg.Transport,
		engine:    cfg.Engine,
		logger:    log.OrNoop(cfg.Logger),
		backoff:   connection.NewBackoffWithConfig(cfg.Backoff),
	}
}

// Start launches the serve and notification loops.
func (p *Port) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	events, unsubscribe := p.engine.Subscribe()
	p.unsubscribe = unsubscribe

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.serve(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.notify(events)
	}()
}

// Stop shuts the port down and waits for its loops to exit.
func (p *Port) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.transport.Close()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.wg.Wait()
}

// serve is the reopen loop: open a session, pump it until it fails, back
// off, repeat. Only an exhausted retry budget ends the loop early.
func (p *Port) serve(ctx context.Context) {
	for {
		session, err := p.transport.Open(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTransportClosed) {
				return
			}
			delay, berr := p.backoff.Next()
			if berr != nil {
				p.logError(LayerReason{log.LayerTransport, "reconnect budget exhausted"}, berr)
				return
			}
			p.logError(LayerReason{log.LayerTransport, "open failed"}, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		p.backoff.Reset()
		p.setSession(session)
		p.logConnState(session, "", "connected", "")

		// Announce the firmware once per session, like a controller
		// coming out of reset.
		boot := rapi.BootNotification(p.engine.FirmwareVersion())
		if err := session.Write([]byte(boot)); err == nil {
			p.logLine(session, log.DirectionOut, log.CategoryNotification, boot)
			p.pump(ctx, session)
		}

		p.setSession(nil)
		session.Close()
		p.logConnState(session, "connected", "closed", "")
	}
}

// pump reads lines from one session until it errors.
func (p *Port) pump(ctx context.Context, session Session) {
	for {
		line, err := session.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			// Protocol error, not a session error: reject and go on.
			p.logError(LayerReason{log.LayerTransport, "oversized line discarded"}, err)
			p.writeSession(session, rapi.ResponseError+rapi.LineEnding)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				p.logError(LayerReason{log.LayerTransport, "read failed"}, err)
			}
			return
		}

		p.logLine(session, log.DirectionIn, log.CategoryLine, line)
		response := p.engine.Execute(line)
		if err := session.Write([]byte(response)); err != nil {
			p.logError(LayerReason{log.LayerTransport, "write failed"}, err)
			return
		}
		p.logLine(session, log.DirectionOut, log.CategoryLine, response)
	}
}

// notify forwards committed state transitions to the active session as
// unsolicited "$AT" lines. With no session active the event is dropped, as
// a physical controller's notifications vanish on an unplugged wire.
func (p *Port) notify(events <-chan engine.Event) {
	for event := range events {
		line := rapi.StateTransition(event.NewState, event.Pilot, event.CapacityAmps, event.VFlags)
		session := p.currentSession()
		if session == nil {
			continue
		}
		if err := session.Write([]byte(line)); err != nil {
			continue
		}
		p.logLine(session, log.DirectionOut, log.CategoryNotification, line)
	}
}

func (p *Port) setSession(s Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *Port) currentSession() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Port) writeSession(session Session, line string) {
	_ = session.Write([]byte(line))
}

// LayerReason tags an error event with its layer and context.
type LayerReason struct {
	Layer  log.Layer
	Reason string
}

func (p *Port) logError(lr LayerReason, err error) {
	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     lr.Layer,
		Category:  log.CategoryError,
		Transport: p.transport.Name(),
		Error: &log.ErrorEventData{
			Layer:   lr.Layer,
			Message: err.Error(),
			Context: lr.Reason,
		},
	})
}

func (p *Port) logConnState(session Session, old, next, reason string) {
	p.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: session.ID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Transport:    p.transport.Name(),
		RemoteAddr:   session.RemoteAddr(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old,
			NewState: next,
			Reason:   reason,
		},
	})
}

func (p *Port) logLine(session Session, dir log.Direction, cat log.Category, line string) {
	const captureLimit = 128

	text := strings.TrimRight(line, "\r\n")
	truncated := false
	if len(text) > captureLimit {
		text = text[:captureLimit]
		truncated = true
	}
	p.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: session.ID(),
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     cat,
		Transport:    p.transport.Name(),
		RemoteAddr:   session.RemoteAddr(),
		Line: &log.LineEvent{
			Text:      text,
			Size:      len(line),
			Truncated: truncated,
		},
	})
}
