package cryscope

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harunnryd/cryscope/pkg/frames"
)

func TestWriterSinkRewritesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	sink.OnText("Cry")
	sink.OnText("Cry")
	sink.OnText("Cry: hungry")
	sink.OnError("quota exceeded")

	out := buf.String()
	if strings.Count(out, "\r") != 2 {
		t.Fatalf("expected duplicate update to be skipped, got %q", out)
	}
	if !strings.HasSuffix(out, "Cry: hungry\nerror: quota exceeded\n") {
		t.Fatalf("unexpected output %q", out)
	}
	if sink.Last() != "Cry: hungry" {
		t.Fatalf("unexpected last text %q", sink.Last())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	multi := MultiSink{a, nil, b, NewLogSink(discardLogger())}
	multi.OnText("x")
	multi.OnError("boom")
	if len(a.texts) != 1 || len(b.errors) != 1 {
		t.Fatalf("expected both sinks to be notified")
	}
}

func TestFrameWriterSkipsAudio(t *testing.T) {
	var buf bytes.Buffer
	write := NewFrameWriter(&buf)
	write(frames.NewAudioFrame("s1", 1, []float32{0.1}, 16000, nil))
	write(frames.NewTextFrame("s1", 2, "Cry", nil))
	write(frames.NewSystemFrame("s1", 3, "error", map[string]string{frames.MetaError: "boom"}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"text":"Cry"`) || !strings.Contains(lines[1], `"error":"boom"`) {
		t.Fatalf("unexpected lines %q", lines)
	}
	if strings.Contains(lines[0], `"meta"`) {
		t.Fatalf("expected session id to be lifted out of meta: %s", lines[0])
	}
}
