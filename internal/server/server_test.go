//nolint:all
package server_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/andrei-cloud/anet"

	"github.com/andrei-cloud/go_memtest/internal/harness"
	server "github.com/andrei-cloud/go_memtest/internal/server"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
)

const testAddr = "127.0.0.1:1700"

// startTestServer starts the control server for testing.
func startTestServer(t *testing.T) *server.Server {
	t.Helper()

	h := harness.New(faultsim.New())
	srv, err := server.NewServer(testAddr, h)
	if err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("server start error: %v", err)
		}
	case <-time.After(1 * time.Second):
		// Allow some time for the server to start
	}

	time.Sleep(100 * time.Millisecond)

	return srv
}

func connFactory(addr string) (anet.PoolItem, error) {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		conn.Close()

		return nil, err
	}

	return conn, nil
}

// TestAllocateOverWire verifies a malloc round trip through the TCP framing.
func TestAllocateOverWire(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	pool := anet.NewPool(1, connFactory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	req := []byte("MA 32")
	resp, err := broker.Send(&req)
	if err != nil {
		t.Fatalf("malloc request failed: %v", err)
	}

	if len(resp) < 4 || string(resp[:4]) != "MB00" {
		t.Fatalf("unexpected response: got %s, want MB00 prefix", resp)
	}

	ptr := string(resp[4:])
	if ptr == "0" {
		t.Fatal("allocation unexpectedly failed")
	}

	req = []byte("MF " + ptr)
	resp, err = broker.Send(&req)
	if err != nil {
		t.Fatalf("free request failed: %v", err)
	}
	if string(resp) != "MG00" {
		t.Fatalf("unexpected free response: got %s, want MG00", resp)
	}
}

// TestFaultConfigOverWire verifies FC reporting and a simulated failure.
func TestFaultConfigOverWire(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	pool := anet.NewPool(1, connFactory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	steps := []struct {
		req  string
		want string
	}{
		{"FI 1", "FJ00"},
		{"FC 0 1", "FD000 0"},
		{"MA 8", "MB000"},
		{"FC -1", "FD001 0"},
		{"FI 0", "FJ00"},
	}
	for _, step := range steps {
		req := []byte(step.req)
		resp, err := broker.Send(&req)
		if err != nil {
			t.Fatalf("request %q failed: %v", step.req, err)
		}
		if string(resp) != step.want {
			t.Fatalf("request %q: got %s, want %s", step.req, resp, step.want)
		}
	}
}

// TestDoubleInstallOverWire verifies the protocol-misuse statuses cross the
// wire.
func TestDoubleInstallOverWire(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	pool := anet.NewPool(1, connFactory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	steps := []struct {
		req  string
		want string
	}{
		{"FI 0", "FJ07"},
		{"FI 1", "FJ00"},
		{"FI 1", "FJ06"},
		{"FI 0", "FJ00"},
	}
	for _, step := range steps {
		req := []byte(step.req)
		resp, err := broker.Send(&req)
		if err != nil {
			t.Fatalf("request %q failed: %v", step.req, err)
		}
		if string(resp) != step.want {
			t.Fatalf("request %q: got %s, want %s", step.req, resp, step.want)
		}
	}
}

// TestUnknownCommand verifies the server responds with incremented code and 68
// for unknown commands.
func TestUnknownCommand(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	pool := anet.NewPool(1, connFactory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	req := []byte("ZZ0123")
	resp, err := broker.Send(&req)
	if err != nil {
		t.Fatalf("unknown command request failed: %v", err)
	}

	if string(resp) != "ZA68" {
		t.Fatalf("unexpected error response: got %s, want ZA68", resp)
	}
}

// TestMemsetMemgetOverWire verifies block contents survive the text protocol.
func TestMemsetMemgetOverWire(t *testing.T) {
	srv := startTestServer(t)
	defer srv.Stop()

	pool := anet.NewPool(1, connFactory, testAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	req := []byte("MA 8")
	resp, err := broker.Send(&req)
	if err != nil {
		t.Fatalf("malloc request failed: %v", err)
	}
	if string(resp[:4]) != "MB00" {
		t.Fatalf("allocation failed: %s", resp)
	}
	ptr := string(resp[4:])

	req = []byte("MS " + ptr + " 8 cafe")
	resp, err = broker.Send(&req)
	if err != nil {
		t.Fatalf("memset request failed: %v", err)
	}
	if string(resp) != "MT00" {
		t.Fatalf("memset failed: %s", resp)
	}

	req = []byte("MG " + ptr + " 8")
	resp, err = broker.Send(&req)
	if err != nil {
		t.Fatalf("memget request failed: %v", err)
	}
	if string(resp[:4]) != "MH00" {
		t.Fatalf("memget failed: %s", resp)
	}
	if got := string(resp[4:]); got != strings.Repeat("cafe", 4) {
		t.Fatalf("unexpected contents: got %s, want %s", got, strings.Repeat("cafe", 4))
	}

	req = []byte("MF " + ptr)
	if _, err := broker.Send(&req); err != nil {
		t.Fatalf("free request failed: %v", err)
	}
}
