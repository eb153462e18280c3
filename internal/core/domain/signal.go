package domain

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalCandidate SignalType = "candidate"
)

// Signal is an SDP or ICE payload produced by the local peer connection.
// There is no signaling server, so signals are only logged and surfaced to
// the local client.
type Signal struct {
	Type    SignalType `json:"type"`
	Payload string     `json:"payload"`
}

func NewSignal(t SignalType, payload string) Signal {
	return Signal{
		Type:    t,
		Payload: payload,
	}
}
