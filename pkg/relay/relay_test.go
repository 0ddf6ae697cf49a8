package relay

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestRunRelaysBothDirections(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()

	stats := &Stats{}
	r := &Relay{}

	done := make(chan struct{})
	go func() {
		r.Run(aServer, bServer, stats)
		close(done)
	}()

	go func() {
		aClient.Write([]byte("hello"))
		buf := make([]byte, 5)
		io.ReadFull(bClient, buf)
		if !bytes.Equal(buf, []byte("hello")) {
			t.Errorf("got %q", buf)
		}

		bClient.Write([]byte("world"))
		buf2 := make([]byte, 5)
		io.ReadFull(aClient, buf2)
		if !bytes.Equal(buf2, []byte("world")) {
			t.Errorf("got %q", buf2)
		}

		aClient.Close()
		bClient.Close()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish")
	}

	snap := stats.Snapshot()
	if snap.BytesUp == 0 && snap.BytesDown == 0 {
		t.Fatalf("expected nonzero byte counts, got %+v", snap)
	}
	if snap.Total != 1 {
		t.Fatalf("expected total=1, got %d", snap.Total)
	}
	if snap.Active != 0 {
		t.Fatalf("expected active=0 after completion, got %d", snap.Active)
	}
}

type fakeAccelerator struct {
	called bool
}

func (f *fakeAccelerator) TryRelay(a, b net.Conn, stats *Stats) bool {
	f.called = true
	return true
}

func TestRunDefersToAccelerator(t *testing.T) {
	a, aPeer := net.Pipe()
	b, bPeer := net.Pipe()
	defer aPeer.Close()
	defer bPeer.Close()

	fake := &fakeAccelerator{}
	r := &Relay{Accelerator: fake}
	stats := &Stats{}

	r.Run(a, b, stats)

	if !fake.called {
		t.Fatal("expected accelerator to be consulted")
	}
	if stats.Total.Load() != 0 {
		t.Fatal("accelerator path should not touch core stats")
	}
}
