// Package daemon wires the Scheduler, Face Table, Content Store,
// Name-Prefix Table/FIB, PIT, forwarding engine, and Internal Client
// into the single cooperative event loop described by spec.md s2 and s5.
package daemon

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ccnhub/ccnd/internal/config"
	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/fwd"
	"github.com/ccnhub/ccnd/internal/identity"
	"github.com/ccnhub/ccnd/internal/log"
	"github.com/ccnhub/ccnd/internal/mgmt"
	"github.com/ccnhub/ccnd/internal/sched"
	"github.com/ccnhub/ccnd/internal/status"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// inboundFrame is one still-encoded message delivered by a face's
// receive goroutine, destined for the single-threaded dispatch loop
// (spec.md s5 "Messages on a given face are processed in arrival
// order").
type inboundFrame struct {
	faceID uint64
	frame  []byte
}

// Daemon owns every table and collaborator and drives the main loop.
// Model this, not a process-wide global, per design note s9 ("Global
// daemon handle").
type Daemon struct {
	Cfg      *config.Config
	Identity *identity.Identity
	Log      *log.Logger

	Faces *face.Table
	Tree  *table.Tree
	Pit   *table.Table
	Cs    *table.Store
	Sched *sched.Scheduler
	Rng   *rand.Rand

	Engine *fwd.Engine
	Mgmt   *mgmt.Client
	Status *status.Server

	inbound chan inboundFrame
	closed  chan uint64 // faceids whose receive goroutine has exited

	udpListeners []*face.UDPListener
	tcpListener  net.Listener
	unixListener net.Listener
	wsListener   net.Listener
	http3Listener *face.HTTP3Listener
}

// New constructs a Daemon from cfg, opening the identity keystore and
// every table (spec.md s2).
func New(cfg *config.Config, l *log.Logger) (*Daemon, error) {
	id, err := identity.Open(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("daemon: identity: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	cs, err := table.NewStore(cfg.ContentStoreCap, rng)
	if err != nil {
		return nil, fmt.Errorf("daemon: content store: %w", err)
	}

	d := &Daemon{
		Cfg:      cfg,
		Identity: id,
		Log:      l,
		Faces:    face.NewTable(),
		Tree:     table.NewTree(),
		Pit:      table.NewTable(),
		Cs:       cs,
		Sched:    sched.New(),
		Rng:      rng,
		inbound:  make(chan inboundFrame, 256),
		closed:   make(chan uint64, 64),
	}

	d.Engine = &fwd.Engine{
		Faces: d.Faces,
		Tree:  d.Tree,
		Pit:   d.Pit,
		Cs:    d.Cs,
		Sched: d.Sched,
		Log:   l,
		Rng:   rng,
		MTU:   cfg.MTU,
	}

	d.Mgmt = mgmt.New(d.Tree, d.Faces, id, l)
	d.Mgmt.OnFaceEnrolled = d.adoptFace

	if cfg.StatusAddr != "" {
		d.Status = status.New(d, cfg.StatusAddr, l)
	}

	// face-id 0 is the Internal Client's reserved endpoint; it never
	// touches a socket (spec.md s4.7), so it is enrolled directly
	// against a null transport rather than going through adoptFace.
	if _, err := d.Faces.Enroll(face.FlagGG|face.FlagLocal, noopTransport{}); err != nil {
		return nil, fmt.Errorf("daemon: reserve internal face: %w", err)
	}

	d.startBackgroundTasks()

	return d, nil
}

// cleanerInterval is the CS eviction cleaner's normal cadence; a pass
// that leaves the store still over capacity reschedules itself at
// evictContinuation instead (spec.md s4.3 "yields a 5ms continuation").
const (
	cleanerInterval     = time.Second
	evictContinuation   = 5 * time.Millisecond
	evictBatch          = 64
	fibAgeStep          = 5 * time.Second
	reaperInterval      = 4 * time.Second // ~ spec.md s8 scenario 6, half of the 8s retirement window
)

// startBackgroundTasks arms the three periodic maintenance callbacks
// that keep the CS, FIB, and Face Table converging without user
// interaction (spec.md s4.2 reaper, s4.3 eviction cleaner, s4.4 aging
// task).
func (d *Daemon) startBackgroundTasks() {
	d.Sched.Enqueue(cleanerInterval, d.csCleanerCallback())
	d.Sched.Enqueue(fibAgeStep, d.fibAgingCallback())
	d.Sched.Enqueue(reaperInterval, d.reaperCallback())
}

func (d *Daemon) csCleanerCallback() sched.Callback {
	return func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Canceled {
			return 0
		}
		if d.Cs.Evict(evictBatch, d.Log) {
			return evictContinuation
		}
		return cleanerInterval
	}
}

func (d *Daemon) fibAgingCallback() sched.Callback {
	return func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Canceled {
			return 0
		}
		d.Tree.AgeForwarding(d.Tree.Root(), fibAgeStep.Seconds(), func(faceID uint64) bool {
			return d.Faces.Get(faceID) != nil
		})
		return fibAgeStep
	}
}

// reaperCallback retires datagram faces silent across two consecutive
// reaper rounds, exempting PERMANENT faces (spec.md s4.2, s4.6).
func (d *Daemon) reaperCallback() sched.Callback {
	return func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Canceled {
			return 0
		}
		var stale []uint64
		d.Faces.Each(func(f *face.Face) {
			if f.ReapRound() {
				stale = append(stale, f.ID)
			}
		})
		for _, id := range stale {
			if f := d.Faces.Get(id); f != nil {
				f.FlushAndCancel(d.Sched)
				_ = f.Transport.Close()
				d.Faces.Remove(id)
			}
		}
		return reaperInterval
	}
}

// noopTransport backs the Internal Client's reserved face-id 0, which
// never performs real I/O (spec.md s4.7).
type noopTransport struct{}

func (noopTransport) String() string           { return "internal-client" }
func (noopTransport) SendFrame([]byte) error    { return nil }
func (noopTransport) RunReceive(func([]byte))   {}
func (noopTransport) Close() error              { return nil }
func (noopTransport) IsRunning() bool           { return true }
func (noopTransport) MTU() int                  { return wire.MaxContentObjectSize }
func (noopTransport) NInBytes() uint64          { return 0 }
func (noopTransport) NOutBytes() uint64         { return 0 }

// adoptFace starts routing a face's received frames into the event
// loop. The unix and TCP listeners, plus mgmt's handleNewFace, funnel
// new faces through here so there is one place that bridges per-face
// receive goroutines into the single-threaded dispatch loop. Faces of
// the shared UDP listener are fed by its own receive loop and have
// their senders started in ListenUDP.
func (d *Daemon) adoptFace(f *face.Face) {
	f.StartSending(d.Sched)
	go func() {
		f.Transport.RunReceive(func(frame []byte) {
			d.inbound <- inboundFrame{faceID: f.ID, frame: frame}
		})
		// Transport.RunReceive returned: the socket closed. Tear the face
		// down from the single dispatch loop rather than here, since the
		// scheduler and Face Table are not safe for concurrent use
		// (spec.md s5 "Shared resources ... no locking is required").
		d.closed <- f.ID
	}()
}

// teardownFace cancels f's send-queue scheduler events and releases its
// slot. Only ever called from the dispatch loop goroutine.
func (d *Daemon) teardownFace(faceID uint64) {
	f := d.Faces.Get(faceID)
	if f == nil {
		return
	}
	f.FlushAndCancel(d.Sched)
	d.Faces.Remove(faceID)
}

// ListenUnix opens the local control socket (spec.md s6 "Local control
// socket"): a Unix-domain stream at cfg.SocketPath(), mode 0666. Any
// stale socket from a prior instance is removed first.
func (d *Daemon) ListenUnix() error {
	path := d.Cfg.SocketPath()
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("daemon: unix listen: %w", err)
	}
	_ = os.Chmod(path, 0666)
	d.unixListener = l
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			tr := face.MakeUnixStreamTransport(conn.(*net.UnixConn), d.faceMTU())
			f, err := d.Faces.Enroll(face.FlagLink|face.FlagGG|face.FlagLocal, tr)
			if err != nil {
				d.Log.Warn(d, "unix face enroll failed", "err", err)
				conn.Close()
				continue
			}
			d.adoptFace(f)
		}
	}()
	return nil
}

// ListenTCP opens the unicast TCP transport on cfg.UnicastPort (spec.md
// s6). Inbound connections start UNDECIDED; a leading "GET " diverts the
// connection to the external HTTP status handler and closes it.
func (d *Daemon) ListenTCP() error {
	addr := fmt.Sprintf(":%d", d.Cfg.UnicastPort)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemon: tcp listen: %w", err)
	}
	d.tcpListener = l
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go d.acceptTCP(conn.(*net.TCPConn))
		}
	}()
	return nil
}

func (d *Daemon) acceptTCP(conn *net.TCPConn) {
	isHTTP, _, err := face.SniffUndecided(conn)
	if err != nil {
		conn.Close()
		return
	}
	if isHTTP {
		// External HTTP status handler collaborator (spec.md s6); out of
		// core scope, so the daemon only disposes of the connection.
		conn.Close()
		return
	}
	flags := face.FlagLink | face.FlagINET
	if host, _, _ := net.SplitHostPort(conn.RemoteAddr().String()); host != "" {
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			flags |= face.FlagGG
		}
	}
	tr := face.MakeTCPTransport(conn, d.faceMTU())
	f, err := d.Faces.Enroll(flags, tr)
	if err != nil {
		d.Log.Warn(d, "tcp face enroll failed", "err", err)
		conn.Close()
		return
	}
	d.adoptFace(f)
}

// ListenUDP opens a unicast UDP endpoint on cfg.UnicastPort, pivoting on
// the shared-socket/per-peer-face model of spec.md s4.6.
func (d *Daemon) ListenUDP() error {
	addr := &net.UDPAddr{Port: d.Cfg.UnicastPort}
	l, err := face.ListenUDP(addr, d.faceMTU(),
		func(peer *net.UDPAddr, tr *face.UDPPeerTransport) *face.Face {
			flags := face.FlagDgram | face.FlagINET
			if tr.IsLoopback() {
				flags |= face.FlagGG
			}
			f, err := d.Faces.Enroll(flags, tr)
			if err != nil {
				d.Log.Warn(d, "udp peer face enroll failed", "err", err)
				return nil
			}
			f.StartSending(d.Sched)
			return f
		},
		func(f *face.Face, frame []byte) {
			if f == nil {
				return
			}
			f.Touch()
			d.inbound <- inboundFrame{faceID: f.ID, frame: frame}
		},
	)
	if err != nil {
		return fmt.Errorf("daemon: udp listen: %w", err)
	}
	d.udpListeners = append(d.udpListeners, l)
	go l.Run()
	return nil
}

// ListenStatus starts the read-only status page (SPEC_FULL.md s2 status
// addendum) over plain HTTP, and over HTTP/3 as well when TLS material
// is configured. It is out of core forwarding scope, so failures here
// are logged, not fatal.
func (d *Daemon) ListenStatus(ctx context.Context) {
	if d.Status == nil {
		return
	}
	if d.Cfg.StatusTLSCert != "" && d.Cfg.StatusTLSKey != "" && d.Cfg.StatusHTTP3Addr != "" {
		if err := d.Status.EnableHTTP3(d.Cfg.StatusHTTP3Addr, d.Cfg.StatusTLSCert, d.Cfg.StatusTLSKey); err != nil {
			d.Log.Warn(d, "status http3 listener failed to start", "err", err)
		}
	}
	go func() {
		if err := d.Status.Run(ctx); err != nil {
			d.Log.Warn(d, "status listener stopped", "err", err)
		}
	}()
}

// ListenWebSocket opens an HTTP endpoint that upgrades requests to
// WebSocket faces, for browser/JS CCN peers (SPEC_FULL.md s4.6 "Face
// I/O" addendum). A no-op when cfg.WebSocketAddr is unset.
func (d *Daemon) ListenWebSocket() error {
	if d.Cfg.WebSocketAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ccnx", func(w http.ResponseWriter, r *http.Request) {
		tr, err := face.UpgradeWebSocket(w, r, d.faceMTU())
		if err != nil {
			d.Log.Warn(d, "websocket upgrade failed", "err", err)
			return
		}
		f, err := d.Faces.Enroll(face.FlagLink|face.FlagINET, tr)
		if err != nil {
			d.Log.Warn(d, "websocket face enroll failed", "err", err)
			_ = tr.Close()
			return
		}
		d.adoptFace(f)
	})
	l, err := net.Listen("tcp", d.Cfg.WebSocketAddr)
	if err != nil {
		return fmt.Errorf("daemon: websocket listen: %w", err)
	}
	d.wsListener = l
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			d.Log.Warn(d, "websocket listener stopped", "err", err)
		}
	}()
	return nil
}

// ListenWebTransport opens an HTTP/3 WebTransport face listener when
// cfg.WebTransportAddr and TLS material are configured (SPEC_FULL.md
// s4.6 "Face I/O" addendum). A no-op otherwise.
func (d *Daemon) ListenWebTransport() error {
	if d.Cfg.WebTransportAddr == "" || d.Cfg.StatusTLSCert == "" || d.Cfg.StatusTLSKey == "" {
		return nil
	}
	l, err := face.NewHTTP3Listener(d.Cfg.WebTransportAddr, d.Cfg.StatusTLSCert, d.Cfg.StatusTLSKey, d.faceMTU(),
		func(tr *face.HTTP3Transport) {
			f, err := d.Faces.Enroll(face.FlagLink|face.FlagINET, tr)
			if err != nil {
				d.Log.Warn(d, "webtransport face enroll failed", "err", err)
				_ = tr.Close()
				return
			}
			d.adoptFace(f)
		})
	if err != nil {
		return fmt.Errorf("daemon: webtransport listen: %w", err)
	}
	d.http3Listener = l
	go func() {
		if err := l.Run(); err != nil {
			d.Log.Warn(d, "webtransport listener stopped", "err", err)
		}
	}()
	return nil
}

func (d *Daemon) faceMTU() int {
	if d.Cfg.MTU > 0 {
		return d.Cfg.MTU
	}
	return 1280
}

// String satisfies log.module's fmt.Stringer convention.
func (d *Daemon) String() string { return "daemon" }

// Snapshot implements status.Source (SPEC_FULL.md s2 status page
// addendum).
func (d *Daemon) Snapshot() status.Snapshot {
	return status.Snapshot{
		NumFaces:       d.numFaces(),
		NumPitEntries:  d.Pit.Len(),
		NumCsEntries:   d.Cs.Len(),
		NumFibPrefixes: d.numFibPrefixes(),
	}
}

func (d *Daemon) numFaces() int {
	n := 0
	d.Faces.Each(func(*face.Face) { n++ })
	return n
}

// numFibPrefixes counts name-prefix entries carrying at least one FIB
// record, via table.Tree.Walk (spec.md s3 "Name-Prefix Entry").
func (d *Daemon) numFibPrefixes() int {
	n := 0
	d.Tree.Walk(func(e *table.PrefixEntry) {
		if len(e.Forwarding) > 0 {
			n++
		}
	})
	return n
}

// Run drives the event loop: run due scheduled events, drain the
// Internal Client's outgoing ring, then block on either an inbound
// frame or the next scheduler deadline (spec.md s5 "Scheduling").
func (d *Daemon) Run(ctx context.Context) {
	for {
		wait := d.Sched.RunDue()

		for _, resp := range d.Mgmt.Drain() {
			d.Engine.OnContent(mgmt.InternalFaceID, resp.CO, resp.Raw)
		}

		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if wait == sched.NoDeadline {
			timer = time.NewTimer(time.Second)
		} else {
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
			timer = time.NewTimer(wait)
		}
		timeoutCh = timer.C

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case in := <-d.inbound:
			timer.Stop()
			d.dispatch(in.faceID, in.frame)
			d.drainAvailable()
		case faceID := <-d.closed:
			timer.Stop()
			d.teardownFace(faceID)
		case <-timeoutCh:
		}
	}
}

// drainAvailable processes any further frames already queued without
// waiting, so a burst of arrivals is handled before the next
// RunDue/poll cycle (spec.md s5 "All structural mutations run to
// completion between poll returns").
func (d *Daemon) drainAvailable() {
	for {
		select {
		case in := <-d.inbound:
			d.dispatch(in.faceID, in.frame)
		default:
			return
		}
	}
}

// dispatch frames one already-received byte run into its constituent
// messages (unwrapping at most one PDU layer, spec.md s4.6) and routes
// each by outermost type tag (spec.md s6 "Wire messages").
func (d *Daemon) dispatch(faceID uint64, frame []byte) {
	f := d.Faces.Get(faceID)
	if f == nil {
		return
	}
	f.Touch()
	f.RecvCount++

	msgs, err := wire.ReadMessages(frame)
	if err != nil {
		d.Log.Debug(d, "parse error: frame dropped", "face", faceID, "err", err)
		return
	}
	for _, m := range msgs {
		d.dispatchOne(faceID, f, m)
	}
}

func (d *Daemon) dispatchOne(faceID uint64, f *face.Face, m wire.Message) {
	switch m.Type {
	case wire.TypeInterest:
		it, err := wire.DecodeInterest(m.Body)
		if err != nil {
			d.Log.Debug(d, "parse error: interest dropped", "face", faceID, "err", err)
			return
		}
		d.handleInterest(faceID, it)

	case wire.TypeContentObject:
		co, err := wire.DecodeContentObject(m.Body)
		if err != nil {
			d.Log.Debug(d, "parse error: content object dropped", "face", faceID, "err", err)
			return
		}
		raw := m.Body
		d.Engine.OnContent(faceID, co, raw)

	case wire.TypeInject:
		if f.Flags&(face.FlagGG|face.FlagLocal) != face.FlagGG|face.FlagLocal {
			d.Log.Debug(d, "policy denied: inject from non-GG+LOCAL face", "face", faceID)
			return
		}
		inj, err := wire.DecodeInject(m.Body)
		if err != nil {
			d.Log.Debug(d, "parse error: inject dropped", "face", faceID, "err", err)
			return
		}
		d.handleInject(inj)

	default:
		d.Log.Debug(d, "unknown outermost message type dropped", "face", faceID, "type", m.Type)
	}
}

// handleInterest routes a decoded Interest to the Internal Client first
// (spec.md s4.7), falling through to ordinary forwarding (spec.md
// s4.5.1) when no management filter matches.
func (d *Daemon) handleInterest(faceID uint64, it *wire.Interest) {
	if isRegSelf(it.Name) {
		d.Mgmt.RegisterSelf(it, faceID)
	}
	if d.Mgmt.HandleInterest(it) {
		return
	}
	d.Engine.OnInterest(faceID, it)
}

func isRegSelf(n wire.Name) bool {
	regSelf := wire.NameFromString("/ccnx/reg/self")
	return regSelf.IsPrefix(n)
}

// handleInject performs the raw sendto onto the matching UDP
// descriptor (spec.md s6 "Inject ... carries (SOType, Address,
// <Interest>) and causes a raw sendto on the matching UDP descriptor").
// The matching descriptor is the daemon's own unicast UDP listener
// socket: ccnd faces are symmetric, so the peer is addressed on the
// same port this daemon listens on.
func (d *Daemon) handleInject(inj *wire.Inject) {
	if len(d.udpListeners) == 0 {
		d.Log.Debug(d, "inject: no UDP descriptor open")
		return
	}
	dst := &net.UDPAddr{IP: net.IP(inj.Address), Port: d.Cfg.UnicastPort}
	if err := d.udpListeners[0].WriteTo(wire.EncodeInterest(inj.Interest), dst); err != nil {
		d.Log.Debug(d, "inject sendto failed", "err", err)
	}
}

// Close tears down every listener and the Content Store's badger
// handle.
func (d *Daemon) Close() error {
	if d.unixListener != nil {
		d.unixListener.Close()
		_ = os.Remove(d.Cfg.SocketPath())
	}
	if d.tcpListener != nil {
		d.tcpListener.Close()
	}
	if d.wsListener != nil {
		d.wsListener.Close()
	}
	if d.http3Listener != nil {
		d.http3Listener.Close()
	}
	for _, l := range d.udpListeners {
		l.Close()
	}
	return d.Cs.Close()
}
