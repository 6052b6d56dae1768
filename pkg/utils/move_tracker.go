package utils

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// MoveEvent is one applied vertex move in the analysis journal.
type MoveEvent struct {
	MoveNumber int    `json:"move"`
	Phase      string `json:"phase"`
	Node       int32  `json:"node"`
	FromBlock  int32  `json:"from_block"`
	ToBlock    int32  `json:"to_block"`
	Gain       int32  `json:"gain"`
	Timestamp  int64  `json:"timestamp"`
}

// MoveTracker appends move events to a JSON-lines file. All methods are safe
// for concurrent use and are no-ops on a nil tracker, so call sites do not
// guard against disabled tracking.
type MoveTracker struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	moves   int
}

// NewMoveTracker creates the journal file, returning nil on failure so
// tracking silently degrades to off.
func NewMoveTracker(filename string) *MoveTracker {
	file, err := os.Create(filename)
	if err != nil {
		return nil
	}
	return &MoveTracker{file: file, encoder: json.NewEncoder(file)}
}

// LogMove appends one move event.
func (mt *MoveTracker) LogMove(phase string, node, fromBlock, toBlock, gain int32) {
	if mt == nil {
		return
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.moves++
	mt.encoder.Encode(MoveEvent{
		MoveNumber: mt.moves,
		Phase:      phase,
		Node:       node,
		FromBlock:  fromBlock,
		ToBlock:    toBlock,
		Gain:       gain,
		Timestamp:  time.Now().Unix(),
	})
}

// Close flushes and closes the journal.
func (mt *MoveTracker) Close() {
	if mt != nil && mt.file != nil {
		mt.file.Close()
	}
}
