package server

// Wire protocol for the call endpoint. Control messages travel as JSON text
// frames; audio travels as binary frames in both directions. A client opens
// a call either in text mode (send "text" messages, read "reply" messages)
// or in voice mode (send "start", then stream audio frames and read replies
// plus synthesised audio).

// Client → server message types.
const (
	msgStart = "start"
	msgText  = "text"
	msgBye   = "bye"
)

// Server → client message types.
const (
	msgReady      = "ready"
	msgStarted    = "started"
	msgTranscript = "transcript"
	msgReply      = "reply"
	msgAudioEnd   = "audio_end"
	msgError      = "error"
)

// Supported inbound audio codecs.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// clientMessage is a JSON control frame sent by the caller's client.
type clientMessage struct {
	Type string `json:"type"`

	// start fields.
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// text fields.
	Text string `json:"text,omitempty"`
}

// serverMessage is a JSON control frame sent to the caller's client.
type serverMessage struct {
	Type string `json:"type"`

	CallID string `json:"call_id,omitempty"`
	Codec  string `json:"codec,omitempty"`

	// reply / transcript fields.
	Text       string  `json:"text,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	Deferred   bool    `json:"deferred,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// error fields.
	Message string `json:"message,omitempty"`
}
