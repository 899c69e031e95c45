package realtime

import (
	"errors"
	"testing"
)

func TestDispatcherUpdatesPerFragment(t *testing.T) {
	d := NewDispatcher(testLogger())
	out, err := d.Dispatch([]byte(`{"type":"conversation.item.created","item":{"id":"item_1","content":[{"type":"text","text":"饥"},{"type":"input_audio"},{"type":"text","text":"饿"}]}}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Type != EventItemCreated || !equalStrings(out.Updates, []string{"饥", "饥饿"}) {
		t.Fatalf("unexpected dispatch %+v", out)
	}
	if !equalStrings(d.Fragments(), []string{"饥", "饿"}) {
		t.Fatalf("unexpected fragments %q", d.Fragments())
	}
}

func TestDispatcherErrorDoesNotMutateText(t *testing.T) {
	d := NewDispatcher(testLogger())
	_, _ = d.Dispatch([]byte(`{"type":"response.text.delta","delta":"keep"}`))
	_, err := d.Dispatch([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"Throttling","message":"quota exceeded"}}`))
	var svc *ServiceError
	if !errors.As(err, &svc) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svc.Code != "Throttling" || svc.Type != "invalid_request_error" || Message(err) != "quota exceeded" {
		t.Fatalf("unexpected service error %+v", svc)
	}
	if d.Text() != "keep" {
		t.Fatalf("error event mutated text: %q", d.Text())
	}
}

func TestDispatcherRejectsMalformedPayloads(t *testing.T) {
	cases := []string{
		`{"type":`,
		`[1,2,3]`,
		`{"type":"response.text.delta","delta":42}`,
	}
	for _, c := range cases {
		d := NewDispatcher(testLogger())
		_, err := d.Dispatch([]byte(c))
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("Dispatch(%s) = %v, want ProtocolError", c, err)
		}
		if Message(err) != "malformed service message" {
			t.Fatalf("unexpected display message %q", Message(err))
		}
	}
}

func TestReplayStopsAtProtocolError(t *testing.T) {
	text, err := Replay([][]byte{
		[]byte(`{"type":"response.text.delta","delta":"a"}`),
		[]byte(`{"type":"error","error":{"message":"ignored"}}`),
		[]byte(`{"type":"response.text.delta","delta":"b"}`),
		[]byte(`oops`),
		[]byte(`{"type":"response.text.delta","delta":"c"}`),
	})
	if err == nil || text != "ab" {
		t.Fatalf("Replay = %q, %v; want \"ab\" and an error", text, err)
	}
}

func TestEncodeSessionUpdateDefaultsModel(t *testing.T) {
	b, err := EncodeSessionUpdate("")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"session.update","session":{"modalities":["text"],"input_audio_format":"pcm16","input_audio_transcription":{"model":"iic/speech_ctt_model"}}}`
	if string(b) != want {
		t.Fatalf("got %s", b)
	}
}

func TestConnectionErrorMessages(t *testing.T) {
	if got := (&ConnectionError{}).Error(); got != "connection error: transport failure" {
		t.Fatalf("unexpected %q", got)
	}
	err := &ConnectionError{Op: opDial, Err: errors.New("no route to host")}
	if Message(err) != "no route to host" {
		t.Fatalf("unexpected display message %q", Message(err))
	}
	if got := err.Error(); got != "connection error: dial: no route to host" {
		t.Fatalf("unexpected %q", got)
	}
}
