package listener

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestHttpListener_Start(t *testing.T) {
	addr := freeAddr(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	l := NewHttpListener(addr, handler, WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	var resp *http.Response
	waitFor(t, "listener to accept", func() bool {
		var err error
		resp, err = http.Get("http://" + addr + "/")
		return err == nil
	})
	_ = resp.Body.Close()
	testutil.AssertEqual(t, "status", resp.StatusCode, http.StatusTeapot)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestHttpListener_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ln.Close()

	l := NewHttpListener(ln.Addr().String(), http.NotFoundHandler())
	err = l.Start(context.Background())
	testutil.AssertErrorContains(t, err, "already in use")
}
