package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRealtimeConnect  ReasonCode = "realtime_connect"
	ReasonRealtimeSend     ReasonCode = "realtime_send"
	ReasonRealtimeProtocol ReasonCode = "realtime_protocol"
	ReasonRealtimeService  ReasonCode = "realtime_service"
	ReasonRealtimeState    ReasonCode = "realtime_state"

	ReasonCaptureOpen   ReasonCode = "capture_open"
	ReasonCaptureDecode ReasonCode = "capture_decode"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
