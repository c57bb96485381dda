// Package events decodes canvas program log output into typed domain events.
package events

import (
	"github.com/gagliardetto/solana-go"
)

// Event is the closed set of state-change events emitted by the canvas
// program. The projection applier dispatches on the concrete type; anything
// the parser does not recognize never reaches it.
type Event interface {
	isEvent()
}

// PixelChanged is emitted once per pixel placement. Painter is the signer
// that submitted the transaction; MainWallet is the owning wallet, which
// differs from Painter when a delegated session key signed.
type PixelChanged struct {
	PX         uint16
	PY         uint16
	Color      uint32
	Painter    solana.PublicKey
	MainWallet solana.PublicKey
	Timestamp  int64
}

func (PixelChanged) isEvent() {}

// ShardInitialized is emitted when a territory shard is created. A shard is
// created at most once per coordinate pair; redundant emissions are resolved
// downstream.
type ShardInitialized struct {
	ShardX     int32
	ShardY     int32
	Creator    solana.PublicKey
	MainWallet solana.PublicKey
	Timestamp  int64
}

func (ShardInitialized) isEvent() {}
