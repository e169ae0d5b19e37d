package protocol

import "encoding/json"

// Control asks the simulation to wait between ticks.
type Control struct {
	TimeToWaitInMilliseconds int `json:"timeToWaitInMilliseconds"`
}

// EncodeControl marshals a control frame. Negative delays are sent as 0.
func EncodeControl(delayMS int) ([]byte, error) {
	if delayMS < 0 {
		delayMS = 0
	}
	return json.Marshal(Control{TimeToWaitInMilliseconds: delayMS})
}

// DecodeControl parses a control frame received by a simulation.
func DecodeControl(b []byte) (Control, error) {
	var c Control
	err := json.Unmarshal(b, &c)
	return c, err
}
