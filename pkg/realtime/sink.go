package realtime

// ResultSink consumes session output. OnText receives the full accumulated
// text after every appended fragment; OnError receives a displayable message.
type ResultSink interface {
	OnText(text string)
	OnError(message string)
}

// SinkFuncs adapts plain functions to ResultSink. Nil fields are skipped.
type SinkFuncs struct {
	Text  func(string)
	Error func(string)
}

func (s SinkFuncs) OnText(text string) {
	if s.Text != nil {
		s.Text(text)
	}
}

func (s SinkFuncs) OnError(message string) {
	if s.Error != nil {
		s.Error(message)
	}
}

type nopSink struct{}

func (nopSink) OnText(string)  {}
func (nopSink) OnError(string) {}
