package lms

import (
	"github.com/hbslabs/lms-core/lms/auxdata"
	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/ots"
)

// A LmsPrivateKey is used to sign a finite number of messages.
//
// Exactly one of authtree or aux is non-nil: authtree holds the full,
// precomputed tree; aux holds a partial, MAC-verified cache that Sign
// and Public recompute around on demand. See resolveNode.
type LmsPrivateKey struct {
	typecode common.LmsAlgorithmType
	otstype  common.LmsOtsAlgorithmType
	q        uint32
	id       common.ID
	seed     []byte
	authtree [][]byte
	aux      *auxdata.Tree
}

// A LmsPublicKey is used to verify messages signed by a LmsPrivateKey
type LmsPublicKey struct {
	typecode common.LmsAlgorithmType
	otstype  common.LmsOtsAlgorithmType
	id       common.ID
	k        []byte
}

// A LmsSignature represents a signature produced by an LmsPrivateKey
// which an LmsPublicKey can validate for a given message
type LmsSignature struct {
	typecode common.LmsAlgorithmType
	q        uint32
	ots      ots.LmsOtsSignature
	path     [][]byte
}
