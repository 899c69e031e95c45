package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/cryscope/pkg/transports"
)

func TestDialErrorInjection(t *testing.T) {
	boom := errors.New("unreachable")
	d := NewDialer(WithDialError(boom))
	if _, err := d.Dial(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if d.Dials() != 1 || d.Last() != nil {
		t.Fatalf("expected one failed dial and no connection")
	}
}

func TestScriptedConnection(t *testing.T) {
	d := NewDialer(WithAutoOpen(true), WithAutoClose(true), WithScript(`{"type":"a"}`, `{"type":"b"}`))
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var events []string
	conn.Start(transports.HandlerFuncs{
		Open:    func() { events = append(events, "open") },
		Message: func(p []byte) { events = append(events, string(p)) },
		Closed:  func() { events = append(events, "closed") },
	})
	if err := conn.Send([]byte(`{"type":"session.update"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.Close()
	_ = conn.Close()

	want := []string{"open", `{"type":"a"}`, `{"type":"b"}`, "closed"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
	spy := d.Last()
	if spy.CloseCalls() != 2 {
		t.Fatalf("expected close calls to be counted, got %d", spy.CloseCalls())
	}
	if types := spy.SentTypes(); len(types) != 1 || types[0] != "session.update" {
		t.Fatalf("unexpected sent types %v", types)
	}
	if err := spy.Send([]byte("late")); !errors.Is(err, transports.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestTerminalCallbackOnce(t *testing.T) {
	conn, _ := NewDialer().Dial(context.Background())
	spy := conn.(*Conn)
	var errs, closes int
	spy.Start(transports.HandlerFuncs{
		Error:  func(error) { errs++ },
		Closed: func() { closes++ },
	})
	spy.Fail(errors.New("reset"))
	spy.Drop()
	spy.Deliver(`{"type":"ignored"}`)
	if errs != 1 || closes != 0 {
		t.Fatalf("expected a single terminal error, got errors=%d closes=%d", errs, closes)
	}
}
