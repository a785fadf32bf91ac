// Package server exposes the test harness over TCP using the anet length
// prefixed framing. Each frame is a two-character command code followed by a
// space-separated text payload.
package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_memtest/internal/harness"
	"github.com/andrei-cloud/go_memtest/internal/logging"
)

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Server wraps the anet TCP server around a command harness.
type Server struct {
	address     string
	srv         *anetserver.Server
	harness     *harness.Harness
	activeConns int32
}

// NewServer configures and returns the control server instance.
func NewServer(address string, h *harness.Harness) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        100,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{
		address: address,
		harness: h,
	}
	handler := anetserver.HandlerFunc(s.handle)
	srv, err := anetserver.NewServer(address, handler, cfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Start begins listening for connections.
func (s *Server) Start() error {
	log.Info().Str("address", s.address).Msg("server started")

	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// Harness returns the command harness driven by this server.
func (s *Server) Harness() *harness.Harness {
	return s.harness
}

// formatData returns ascii string if all bytes are printable, else hex string.
func formatData(data []byte) string {
	for _, b := range data {
		if b < 32 || b > 126 {
			return hex.EncodeToString(data)
		}
	}

	return string(data)
}

// handle routes one framed request through the harness and logs the
// round trip.
func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	atomic.AddInt32(&s.activeConns, 1)
	defer atomic.AddInt32(&s.activeConns, -1)

	start := time.Now()
	log.Debug().
		Str("event", "handle_start").
		Str("client_ip", client).
		Msg("starting request handling")

	if len(data) < 2 {
		log.Error().Str("client_ip", client).Msg("malformed request")

		return nil, errors.New("malformed request")
	}

	cmd := string(data[:2])
	payload := data[2:]
	reqStr := formatData(data)
	logging.LogRequest(
		client,
		cmd,
		s.harness.Describe(cmd),
		data,
		int(atomic.LoadInt32(&s.activeConns)),
	)

	resp := s.harness.Dispatch(cmd, payload)

	respStr := formatData(resp)
	statusCode := ""
	if len(resp) >= 4 {
		statusCode = string(resp[2:4])
	}
	logging.LogResponse(
		client,
		cmd,
		statusCode,
		resp,
		int(atomic.LoadInt32(&s.activeConns)),
	)

	total := time.Since(start)
	log.Debug().
		Str("event", "handle_done").
		Str("request", reqStr).
		Str("response", respStr).
		Str("duration", total.String()).
		Msg("completed request handling")

	return resp, nil
}
