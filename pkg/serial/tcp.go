package serial

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evsim-project/evsim-go/pkg/log"
)

// TCPTransport exposes the serial link on a TCP port. Exactly one client is
// active at a time; a newly accepted connection displaces the previous one,
// which lets a stuck client be replaced without restarting the emulator.
type TCPTransport struct {
	listener net.Listener
	logger   log.Logger

	mu      sync.Mutex
	current *tcpSession

	next      chan *tcpSession
	closed    chan struct{}
	closeOnce sync.Once
}

// ListenTCP binds the listener and starts accepting in the background. A
// bind failure is terminal and surfaces to startup.
func ListenTCP(port int, logger log.Logger) (*TCPTransport, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind serial TCP port %d: %w", port, err)
	}

	t := &TCPTransport{
		listener: listener,
		logger:   log.OrNoop(logger),
		next:     make(chan *tcpSession, 1),
		closed:   make(chan struct{}),
	}
	go t.acceptLoop()
	return t, nil
}

// Addr returns the bound listener address.
func (t *TCPTransport) Addr() net.Addr {
	return t.listener.Addr()
}

// Name returns "tcp".
func (t *TCPTransport) Name() string {
	return "tcp"
}

// Open blocks until a client connects.
func (t *TCPTransport) Open(ctx context.Context) (Session, error) {
	select {
	case session := <-t.next:
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrTransportClosed
	}
}

// Close stops the listener and drops the active client.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.listener.Close()

		t.mu.Lock()
		if t.current != nil {
			t.current.Close()
			t.current = nil
		}
		t.mu.Unlock()
	})
	return err
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			// Transient accept failure, back off briefly.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		session := newTCPSession(conn)

		t.mu.Lock()
		displaced := t.current
		t.current = session
		t.mu.Unlock()

		if displaced != nil {
			displaced.Close()
			t.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: displaced.ID(),
				Direction:    log.DirectionIn,
				Layer:        log.LayerTransport,
				Category:     log.CategoryState,
				Transport:    "tcp",
				RemoteAddr:   displaced.RemoteAddr(),
				StateChange: &log.StateChangeEvent{
					Entity:   log.StateEntityConnection,
					OldState: "connected",
					NewState: "closed",
					Reason:   "displaced by new client",
				},
			})
		}

		// A slow consumer only ever sees the latest client.
		select {
		case <-t.next:
		default:
		}
		t.next <- session
	}
}

type tcpSession struct {
	id     string
	conn   net.Conn
	reader *LineReader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newTCPSession(conn net.Conn) *tcpSession {
	return &tcpSession{
		id:     uuid.New().String(),
		conn:   conn,
		reader: NewLineReader(conn),
	}
}

func (s *tcpSession) ID() string {
	return s.id
}

func (s *tcpSession) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *tcpSession) ReadLine() (string, error) {
	return s.reader.ReadLine()
}

func (s *tcpSession) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(p)
	return err
}

func (s *tcpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
