package face

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/ccnhub/ccnd/internal/log"
)

// HTTP3Transport carries one CCN message per WebTransport datagram over
// an HTTP/3 session (SPEC_FULL.md s4.6 "Face I/O" addendum), grounded on
// teacher's fw/face/http3-transport.go.
type HTTP3Transport struct {
	transportBase
	sess *webtransport.Session
}

func newHTTP3Transport(sess *webtransport.Session, mtu int) *HTTP3Transport {
	t := &HTTP3Transport{sess: sess}
	t.mtu = mtu
	t.running = true
	return t
}

func (t *HTTP3Transport) String() string {
	return fmt.Sprintf("http3-transport(remote=%s)", t.sess.RemoteAddr())
}

func (t *HTTP3Transport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if len(frame) > t.mtu {
		log.Default().Warn(t, "attempted to send datagram larger than MTU")
		return nil
	}
	if err := t.sess.SendDatagram(frame); err != nil {
		log.Default().Warn(t, "unable to send on webtransport session - face DOWN", "err", err)
		_ = t.Close()
		return err
	}
	t.nOutBytes += uint64(len(frame))
	return nil
}

func (t *HTTP3Transport) RunReceive(onFrame func([]byte)) {
	defer t.Close()
	ctx := t.sess.Context()
	for {
		msg, err := t.sess.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		t.nInBytes += uint64(len(msg))
		onFrame(msg)
	}
}

func (t *HTTP3Transport) Close() error {
	if t.running {
		t.running = false
		return t.sess.CloseWithError(0, "")
	}
	return nil
}

// HTTP3Listener accepts WebTransport sessions over HTTP/3 and upgrades
// each to a face transport, grounded on teacher's
// fw/face/http3-listener.go.
type HTTP3Listener struct {
	srv *webtransport.Server
	mtu int
	onSession func(*HTTP3Transport)
}

// NewHTTP3Listener builds a WebTransport listener bound to addr, serving
// the upgrade endpoint at path "/ccnx".
func NewHTTP3Listener(addr, certFile, keyFile string, mtu int, onSession func(*HTTP3Transport)) (*HTTP3Listener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("http3 listener: %w", err)
	}

	l := &HTTP3Listener{mtu: mtu, onSession: onSession}
	mux := http.NewServeMux()
	mux.HandleFunc("/ccnx", l.handle)

	l.srv = &webtransport.Server{
		H3: http3.Server{
			Addr: addr,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
			QUICConfig: &quic.Config{},
			Handler:    mux,
		},
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return l, nil
}

func (l *HTTP3Listener) String() string { return "http3-listener" }

// Run blocks serving WebTransport sessions until Close is called.
func (l *HTTP3Listener) Run() error {
	return l.srv.ListenAndServe()
}

func (l *HTTP3Listener) Close() error { return l.srv.Close() }

func (l *HTTP3Listener) handle(w http.ResponseWriter, r *http.Request) {
	sess, err := l.srv.Upgrade(w, r)
	if err != nil {
		return
	}
	l.onSession(newHTTP3Transport(sess, l.mtu))
}
