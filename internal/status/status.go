// Package status serves a read-only JSON snapshot of the daemon's
// table sizes over both HTTP and HTTP/3 (spec.md s1 puts the status
// page out of core scope; SPEC_FULL.md wires it as a thin external
// collaborator), grounded on teacher's fw/face/http3-listener.go
// (quic-go/quic-go, quic-go/webtransport-go) and
// fw/mgmt/forwarder-status.go's dataset shape, plus original_source
// src/ccnd/ccnd_stats.c.
package status

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/ccnhub/ccnd/internal/log"
)

// Snapshot is the /status.json payload (spec.md s8's CS/PIT/FIB/Face
// size invariants, surfaced read-only).
type Snapshot struct {
	StartTimestamp   int64 `json:"start_timestamp"`
	CurrentTimestamp int64 `json:"current_timestamp"`

	NumFaces       int `json:"num_faces"`
	NumPitEntries  int `json:"num_pit_entries"`
	NumCsEntries   int `json:"num_cs_entries"`
	NumFibPrefixes int `json:"num_fib_prefixes"`
}

// Source supplies the live counters; implemented by the daemon's top
// level wiring so this package stays decoupled from the table types.
type Source interface {
	Snapshot() Snapshot
}

// Server exposes Source over HTTP and, when TLS material is
// configured, HTTP/3.
type Server struct {
	src       Source
	start     time.Time
	log       *log.Logger
	http3Srv  *http3.Server
	plainSrv  *http.Server
}

func (s *Server) String() string { return "status" }

// New builds a Server bound to addr for plain HTTP.
func New(src Source, addr string, l *log.Logger) *Server {
	s := &Server{src: src, start: time.Now(), log: l}
	mux := http.NewServeMux()
	mux.HandleFunc("/status.json", s.handle)
	s.plainSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Snapshot()
	snap.StartTimestamp = s.start.UnixNano()
	snap.CurrentTimestamp = time.Now().UnixNano()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// Run serves plain HTTP until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.plainSrv.Close()
		if s.http3Srv != nil {
			_ = s.http3Srv.Close()
		}
	}()
	if err := s.plainSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// EnableHTTP3 additionally serves /status.json over HTTP/3 at addr
// using the given TLS certificate (SPEC_FULL.md s6 addendum).
func (s *Server) EnableHTTP3(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	s.http3Srv = &http3.Server{
		Addr:      addr,
		Handler:   s.plainSrv.Handler,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
	}
	go func() {
		if err := s.http3Srv.ListenAndServe(); err != nil {
			s.log.Warn(s, "http3 status listener stopped", "err", err)
		}
	}()
	return nil
}
