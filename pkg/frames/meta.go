package frames

const (
	MetaSessionID = "session_id"
	MetaSource    = "source"
	MetaState     = "state"
	MetaPrevState = "prev_state"
	MetaReason    = "reason"
	MetaError     = "error"
	MetaSeq       = "seq"
)
