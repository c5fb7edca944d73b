package progress

import (
	"log"

	"nnuecore/internal/network"
)

// Bridge implements trainer.ProgressCallback and broadcasts every
// training event to the hub as a typed envelope, the same shape the
// energy-simulator's ws.Bridge uses for its own domain events.
type Bridge struct {
	hub *Hub
}

// NewBridge creates a Bridge that broadcasts to hub.
func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// OnBatch implements trainer.ProgressCallback.
func (b *Bridge) OnBatch(epoch, batch, batchCount int, _ *network.Network) {
	msg, err := NewEnvelope(TypeBatchProgress, BatchProgressPayload{
		Epoch:      epoch,
		Batch:      batch,
		BatchCount: batchCount,
	})
	if err != nil {
		log.Printf("progress: marshaling batch progress: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// OnEpoch implements trainer.ProgressCallback.
func (b *Bridge) OnEpoch(epoch, epochCount int, _ *network.Network, loss float64, lossValid bool) {
	msg, err := NewEnvelope(TypeEpochProgress, EpochProgressPayload{
		Epoch:      epoch,
		EpochCount: epochCount,
		Loss:       loss,
		LossValid:  lossValid,
	})
	if err != nil {
		log.Printf("progress: marshaling epoch progress: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// OnCheckpoint broadcasts a checkpoint-save event. Not part of
// trainer.ProgressCallback (Train doesn't currently invoke it directly)
// but provided for callers that want to wire it into their own save
// logic alongside Train's built-in checkpointing.
func (b *Bridge) OnCheckpoint(epoch int, filename string) {
	msg, err := NewEnvelope(TypeCheckpointSave, CheckpointSavePayload{Epoch: epoch, Filename: filename})
	if err != nil {
		log.Printf("progress: marshaling checkpoint event: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}
