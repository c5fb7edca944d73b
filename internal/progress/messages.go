package progress

import "encoding/json"

// Envelope wraps every progress message with a type discriminator, same
// shape as the energy-simulator's WebSocket protocol.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type discriminators. Every one of these is server -> client
// only; this protocol has no client -> server messages.
const (
	TypeBatchProgress  = "batch:progress"
	TypeEpochProgress  = "epoch:progress"
	TypeCheckpointSave = "checkpoint:save"
)

// BatchProgressPayload reports progress within a single epoch.
type BatchProgressPayload struct {
	Epoch      int `json:"epoch"`
	Batch      int `json:"batch"`
	BatchCount int `json:"batch_count"`
}

// EpochProgressPayload reports the outcome of a completed epoch.
type EpochProgressPayload struct {
	Epoch      int     `json:"epoch"`
	EpochCount int     `json:"epoch_count"`
	Loss       float64 `json:"loss,omitempty"`
	LossValid  bool    `json:"loss_valid"`
}

// CheckpointSavePayload reports a checkpoint file having been written.
type CheckpointSavePayload struct {
	Epoch    int    `json:"epoch"`
	Filename string `json:"filename"`
}

// NewEnvelope marshals payload and wraps it in an Envelope of the given
// type.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
