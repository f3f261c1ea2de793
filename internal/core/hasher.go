package core

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const genesisSeed = "LendLedger:genesis:v1"

var ErrReplayChainBroken = errors.New("replay hash chain broken")

// hashChain links each applied command to the one before it:
//
//	state_hash[n] = SHA-256(state_hash[n-1] || le64(n) || digest[n])
//
// The tip before the first command is SHA-256(genesisSeed).
type hashChain struct {
	tip [32]byte
}

func newHashChain() hashChain {
	return hashChain{tip: GenesisHash()}
}

// GenesisHash is the chain tip of an empty ledger.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(genesisSeed))
}

// link appends a command's digest and returns the previous and new tips.
func (h *hashChain) link(sequence int64, stateDigest []byte) (prev, next [32]byte) {
	prev = h.tip
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(sequence))

	s := sha256.New()
	s.Write(prev[:])
	s.Write(seq[:])
	s.Write(stateDigest)
	s.Sum(next[:0])

	h.tip = next
	return prev, next
}

// follows reports whether a logged command was linked onto the current tip.
func (h *hashChain) follows(sequence int64, loggedPrev [32]byte) error {
	if loggedPrev != h.tip {
		return fmt.Errorf("seq %d: logged prev %x, tip %x: %w", sequence, loggedPrev, h.tip, ErrReplayChainBroken)
	}
	return nil
}

// reset moves the tip, e.g. after restoring a snapshot.
func (h *hashChain) reset(tip [32]byte) {
	h.tip = tip
}
