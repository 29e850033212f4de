// Package hss implements the Hierarchical Signature System (RFC 8554
// §6): a stack of 1 to 8 LMS trees in which every level but the bottom
// signs the public key of the level below it. This lets a single
// top-level public key outlive the exhaustion of any one LMS tree: when
// the bottom level runs out of leaves, the stack cascades a fresh
// subtree into place and re-signs it, all without changing what a
// verifier trusts.
package hss

import (
	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/lms"
)

// MaxLevels is RFC 8554 §6's upper bound on the HSS stack depth.
const MaxLevels = 8

// LevelParam names the LMS and LM-OTS parameter pair used at one level
// of the stack.
type LevelParam struct {
	LmsType common.LmsAlgorithmType
	OtsType common.LmsOtsAlgorithmType
}

// HssPrivateKey holds the full stack: one LMS private key per level, the
// cached public key for every level, and the (L-1) signatures binding
// each level to its child's public key. levels[0] is the top of the
// stack; levels[L-1] is the bottom, the one that advances on every Sign.
type HssPrivateKey struct {
	params []LevelParam
	levels []lms.LmsPrivateKey
	pubs   []lms.LmsPublicKey
	sigs   []lms.LmsSignature // sigs[i] signs pubs[i+1] under levels[i], len L-1
}

// HssPublicKey is the long-lived, externally trusted key: the number of
// levels plus the top-level LMS public key. It never changes across a
// cascade.
type HssPublicKey struct {
	l   uint32
	top lms.LmsPublicKey
}

// L returns the configured stack depth.
func (pub *HssPublicKey) L() uint32 { return pub.l }

// Top returns the top-level LMS public key.
func (pub *HssPublicKey) Top() lms.LmsPublicKey { return pub.top }

// HssSignature is the per-message signature: a chain of (signature over
// child public key, child public key) pairs from the top down to the
// level above the bottom, followed by the bottom level's signature over
// the actual message.
type HssSignature struct {
	nspk   uint32
	chain  []signedPublicKey
	finalS lms.LmsSignature
}

type signedPublicKey struct {
	sig lms.LmsSignature
	pub lms.LmsPublicKey
}
