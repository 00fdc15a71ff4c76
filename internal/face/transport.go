package face

// Transport abstracts the concrete socket type underneath a Face,
// grounded on teacher's fw/face/transport.go interface.
type Transport interface {
	String() string

	// SendFrame writes one already-framed message, making a copy if the
	// implementation needs to retain it past the call.
	SendFrame(frame []byte) error

	// RunReceive blocks, delivering complete frames to onFrame until the
	// transport is closed.
	RunReceive(onFrame func([]byte))

	// Close tears down the underlying socket. Idempotent.
	Close() error

	IsRunning() bool
	MTU() int

	NInBytes() uint64
	NOutBytes() uint64
}

// transportBase factors the counters and running-flag bookkeeping shared
// by every concrete transport (grounded on teacher's transportBase).
type transportBase struct {
	mtu       int
	running   bool
	nInBytes  uint64
	nOutBytes uint64
}

func (t *transportBase) MTU() int         { return t.mtu }
func (t *transportBase) IsRunning() bool  { return t.running }
func (t *transportBase) NInBytes() uint64 { return t.nInBytes }
func (t *transportBase) NOutBytes() uint64 { return t.nOutBytes }
