package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/opla/internal/types"
)

func TestGatewaySubmit(t *testing.T) {
	gw := New(2)
	gw.Start(context.Background())
	defer gw.Stop()

	processed := make(chan *Run, 1)
	gw.SetProcessor(func(run *Run) error {
		processed <- run
		return nil
	})

	run := testRun("c1")
	if err := gw.Submit(run); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-processed:
		if got != run {
			t.Error("expected submitted run to be processed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	waitDone(t, run)
}

func TestGatewayBusyConversation(t *testing.T) {
	gw := New(2)
	gw.Start(context.Background())
	defer gw.Stop()

	release := make(chan struct{})
	gw.SetProcessor(func(run *Run) error {
		<-release
		return nil
	})

	first := testRun("c1")
	if err := gw.Submit(first); err != nil {
		t.Fatal(err)
	}

	err := gw.Submit(testRun("c1"))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := gw.Submit(testRun("c2")); err != nil {
		t.Fatalf("other conversations are not blocked: %v", err)
	}

	close(release)
	waitDone(t, first)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := gw.Active("c1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("conversation was not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := gw.Submit(testRun("c1")); err != nil {
		t.Fatalf("expected submit after completion to succeed: %v", err)
	}
}

func TestGatewayCancel(t *testing.T) {
	gw := New(1)
	gw.Start(context.Background())
	defer gw.Stop()

	started := make(chan struct{})
	gw.SetProcessor(func(run *Run) error {
		close(started)
		<-run.Ctx.Done()
		return nil
	})

	run := testRun("c1")
	if err := gw.Submit(run); err != nil {
		t.Fatal(err)
	}
	<-started

	if !gw.Cancel("c1") {
		t.Fatal("expected an active run to cancel")
	}
	waitDone(t, run)

	if gw.Cancel("unknown") {
		t.Error("expected no run for unknown conversation")
	}
}

func TestGatewayWithOnUpdate(t *testing.T) {
	run := testRun("c1")
	called := false
	WithOnUpdate(func(_ []types.Message) { called = true })(run)

	run.OnUpdate(nil)
	if !called {
		t.Error("expected OnUpdate to be set")
	}
}
