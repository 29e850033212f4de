// Package lms implements Leighton-Micali Hash-Based Signatures (RFC 8554)
//
// This file implements the private key and signing logic.
package lms

import (
	"encoding/binary"
	"math/bits"

	"github.com/hbslabs/lms-core/lms/auxdata"
	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/ots"

	"crypto/rand"
	"io"
)

// NewPrivateKey returns a LmsPrivateKey, seeded by a cryptographically secure
// random number generator.
func NewPrivateKey(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType) (LmsPrivateKey, error) {
	var err error
	tc, err = tc.LmsType()
	if err != nil {
		return LmsPrivateKey{}, err
	}
	params, err := tc.LmsParams()
	if err != nil {
		return LmsPrivateKey{}, err
	}

	seed := make([]byte, params.M)
	_, err = rand.Read(seed)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	idbytes := make([]byte, common.ID_LEN)
	_, err = rand.Read(idbytes)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	id := common.ID(idbytes)

	return NewPrivateKeyFromSeed(tc, otstc, id, seed)
}

// NewPrivateKeyFromSeed returns a new LmsPrivateKey, using the algorithm from
// Appendix A of <https://datatracker.ietf.org/doc/html/rfc8554#appendix-A>.
// The full authentication tree is computed and held in memory.
func NewPrivateKeyFromSeed(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType, id common.ID, seed []byte) (LmsPrivateKey, error) {
	tc, err := tc.LmsType()
	if err != nil {
		return LmsPrivateKey{}, err
	}
	otstc, err = otstc.LmsOtsType()
	if err != nil {
		return LmsPrivateKey{}, err
	}
	tree, err := GeneratePKTree(tc, otstc, id, seed)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	return LmsPrivateKey{
		typecode: tc,
		otstype:  otstc,
		q:        0,
		id:       id,
		seed:     seed,
		authtree: tree,
	}, nil
}

// NewPrivateKeyFromSeedWithAux builds a private key that does not hold the
// full authentication tree in memory. Instead it keeps the (already
// MAC-verified) aux cache produced by auxdata.Build, and recomputes
// whatever nodes a given Sign call needs on demand, pruning recomputation
// wherever the cache already has an answer.
func NewPrivateKeyFromSeedWithAux(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType, id common.ID, seed []byte, aux *auxdata.Tree) (LmsPrivateKey, error) {
	tc, err := tc.LmsType()
	if err != nil {
		return LmsPrivateKey{}, err
	}
	otstc, err = otstc.LmsOtsType()
	if err != nil {
		return LmsPrivateKey{}, err
	}
	return LmsPrivateKey{
		typecode: tc,
		otstype:  otstc,
		q:        0,
		id:       id,
		seed:     seed,
		aux:      aux,
	}, nil
}

// Public returns an LmsPublicKey that validates signatures for this private key
func (priv *LmsPrivateKey) Public() (LmsPublicKey, error) {
	root, err := priv.resolveNode(1)
	if err != nil {
		return LmsPublicKey{}, err
	}
	return LmsPublicKey{
		typecode: priv.typecode,
		otstype:  priv.otstype,
		id:       priv.id,
		k:        root,
	}, nil
}

// resolveNode returns T[r] (RFC 8554 node numbering, root is T[1]). It
// prefers, in order: the in-memory full tree, the aux cache, and finally
// on-demand recomputation from the seed -- recursing only into the
// subtrees the cache doesn't already cover.
func (priv *LmsPrivateKey) resolveNode(r uint32) ([]byte, error) {
	if priv.authtree != nil {
		return priv.authtree[r-1][:], nil
	}

	params, err := priv.typecode.LmsParams()
	if err != nil {
		return nil, err
	}
	height := uint64(params.H)
	d := uint64(bits.Len32(r)) - 1

	if node, ok := priv.aux.NodeByR(r, height, d); ok {
		return node, nil
	}

	otsParams, err := priv.otstype.Params()
	if err != nil {
		return nil, err
	}
	leaves := uint32(1) << height
	var rBE [4]byte
	binary.BigEndian.PutUint32(rBE[:], r)

	if r >= leaves {
		i := r - leaves
		otsPriv, err := ots.NewPrivateKeyFromSeed(priv.otstype, i, priv.id, priv.seed)
		if err != nil {
			return nil, err
		}
		otsPub, err := otsPriv.Public()
		if err != nil {
			return nil, err
		}
		hasher := otsParams.H.New()
		common.HashWrite(hasher, priv.id[:])
		common.HashWrite(hasher, rBE[:])
		common.HashWrite(hasher, common.D_LEAF[:])
		common.HashWrite(hasher, otsPub.Key())
		return hasher.Sum(nil), nil
	}

	left, err := priv.resolveNode(2 * r)
	if err != nil {
		return nil, err
	}
	right, err := priv.resolveNode(2*r + 1)
	if err != nil {
		return nil, err
	}
	hasher := otsParams.H.New()
	common.HashWrite(hasher, priv.id[:])
	common.HashWrite(hasher, rBE[:])
	common.HashWrite(hasher, common.D_INTR[:])
	common.HashWrite(hasher, left)
	common.HashWrite(hasher, right)
	return hasher.Sum(nil), nil
}

// Sign calculates the LMS signature of a chosen message and advances q in
// memory. It does not persist the new leaf counter anywhere; callers that
// need durable, crash-safe state must use SignAndPersist instead.
// The rng argument is optional. If nil is provided, crypto/rand.Reader will be used.
func (priv *LmsPrivateKey) Sign(msg []byte, rng io.Reader) (LmsSignature, error) {
	return priv.SignAndPersist(msg, rng, nil)
}

// SignAndPersist calculates the LMS signature of a chosen message, then runs
// the write-then-release protocol described by persist: the new leaf
// counter is serialized and handed to persist before the signature is
// returned to the caller. If persist is nil, the counter is simply
// advanced in memory (equivalent to Sign). If persist returns false, q is
// restored to its value before the call, no signature is released, and
// the error is tagged KindPersistenceFailed; the next call signs with the
// same leaf again.
func (priv *LmsPrivateKey) SignAndPersist(msg []byte, rng io.Reader, persist common.UpdateFunc) (LmsSignature, error) {
	if rng == nil {
		rng = rand.Reader
	}
	params, err := priv.typecode.LmsParams()
	if err != nil {
		return LmsSignature{}, err
	}
	height := int(params.H)
	var leaves uint32 = 1 << height
	if priv.q >= leaves {
		return LmsSignature{}, common.Errorf(common.KindKeyExhausted, "Sign(): all %d one-time keys have been consumed", leaves)
	}

	ots_priv, err := ots.NewPrivateKeyFromSeed(priv.otstype, priv.q, priv.id, priv.seed)
	if err != nil {
		return LmsSignature{}, err
	}
	ots_sig, err := ots_priv.Sign(msg, rng)
	if err != nil {
		return LmsSignature{}, err
	}
	authpath := make([][]byte, params.H)

	var r uint32 = leaves + priv.q
	var temp uint32
	for i := 0; i < height; i++ {
		temp = (r >> i) ^ 1
		node, err := priv.resolveNode(temp)
		if err != nil {
			return LmsSignature{}, err
		}
		authpath[i] = node
	}

	usedQ := priv.q
	priv.incrementQ()

	if persist != nil {
		if !persist(priv.ToBytes()) {
			priv.q = usedQ
			return LmsSignature{}, common.Errorf(common.KindPersistenceFailed, "SignAndPersist(): failed to durably record q=%d before release", usedQ+1)
		}
	}

	return LmsSignature{
		priv.typecode,
		usedQ,
		ots_sig,
		authpath,
	}, nil
}

// Private
func (priv *LmsPrivateKey) incrementQ() {
	priv.q++
}

// ToBytes() serialized the private key into a byte string for storage.
// The current value of the internal counter, q, is included.
func (priv *LmsPrivateKey) ToBytes() []byte {
	var serialized []byte
	var u32_be [4]byte

	// First 4 bytes: typecode
	typecode, _ := priv.typecode.LmsType()
	// ToBytes() is only ever called on a valid object, so this will never return an error
	binary.BigEndian.PutUint32(u32_be[:], typecode.ToUint32())
	serialized = append(serialized, u32_be[:]...)

	// Next 4 bytes: OTS typecode
	otstype, _ := priv.otstype.LmsOtsType()
	// ToBytes() is only ever called on a valid object, so this will never return an error
	binary.BigEndian.PutUint32(u32_be[:], otstype.ToUint32())
	serialized = append(serialized, u32_be[:]...)

	// Next 4 bytes: q
	binary.BigEndian.PutUint32(u32_be[:], priv.q)
	serialized = append(serialized, u32_be[:]...)

	// Next 16 bytes: id
	serialized = append(serialized, priv.id[:]...)

	// Next 32 bytes: seed
	serialized = append(serialized, priv.seed[:]...)

	// We don't need to serialize the authtree; it is either held in memory
	// or recoverable from aux-data plus the seed.
	return serialized
}

// Retrieve the current value of the internal counter, q.
// Used for unit tests
func (priv *LmsPrivateKey) Q() uint32 {
	return priv.q
}

// WithAuxBudget returns a copy of priv that resolves its authentication
// path from a freshly built aux-data cache sized to budgetBytes, instead
// of holding the full tree in memory. q is preserved.
func (priv *LmsPrivateKey) WithAuxBudget(budgetBytes uint64) (LmsPrivateKey, error) {
	tree, _, _, err := auxdata.Build(priv.typecode, priv.otstype, priv.id, priv.seed, budgetBytes)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	return LmsPrivateKey{
		typecode: priv.typecode,
		otstype:  priv.otstype,
		q:        priv.q,
		id:       priv.id,
		seed:     priv.seed,
		aux:      tree,
	}, nil
}

// Type returns the LMS algorithm type this key was created with.
func (priv *LmsPrivateKey) Type() common.LmsAlgorithmType { return priv.typecode }

// OtsType returns the LM-OTS algorithm type this key's leaves use.
func (priv *LmsPrivateKey) OtsType() common.LmsOtsAlgorithmType { return priv.otstype }

// Exhausted reports whether every leaf of this tree has been consumed,
// i.e. whether the next Sign call would return KeyExhausted.
func (priv *LmsPrivateKey) Exhausted() bool {
	params, err := priv.typecode.LmsParams()
	if err != nil {
		return true
	}
	return priv.q >= uint32(1)<<params.H
}

// PeekPrivateKeyLength returns the total byte length of the LMS private
// key that starts at b, without requiring the buffer to already be
// sliced to exactly one key. Used by hss to split a concatenation of
// per-level private keys.
func PeekPrivateKeyLength(b []byte) (uint64, error) {
	if len(b) < 4 {
		return 0, common.Errorf(common.KindMalformed, "PeekPrivateKeyLength(): input too short")
	}
	typecode, err := common.Uint32ToLmsType(binary.BigEndian.Uint32(b[0:4])).LmsType()
	if err != nil {
		return 0, err
	}
	params, err := typecode.LmsParams()
	if err != nil {
		return 0, err
	}
	return params.M + 28, nil
}

// LmsPrivateKeyFromBytes returns an LmsPrivateKey that represents b.
// This is the inverse of the ToBytes() method on the LmsPrivateKey object.
// The returned key holds the full authentication tree in memory; use
// LmsPrivateKeyFromBytesWithAux to restore into aux-backed mode instead.
func LmsPrivateKeyFromBytes(b []byte) (LmsPrivateKey, error) {
	typecode, otstype, q, id, seed, err := parsePrivateKeyBytes(b)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	privateKey, err := NewPrivateKeyFromSeed(typecode, otstype, id, seed)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	privateKey.q = q
	return privateKey, nil
}

// LmsPrivateKeyFromBytesWithAux is the aux-backed counterpart of
// LmsPrivateKeyFromBytes: it restores q, id and seed from b but does not
// rebuild the full tree, relying on aux (already MAC-verified by the
// caller via auxdata.FromBytes) plus on-demand recomputation instead.
func LmsPrivateKeyFromBytesWithAux(b []byte, aux *auxdata.Tree) (LmsPrivateKey, error) {
	typecode, otstype, q, id, seed, err := parsePrivateKeyBytes(b)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	privateKey, err := NewPrivateKeyFromSeedWithAux(typecode, otstype, id, seed, aux)
	if err != nil {
		return LmsPrivateKey{}, err
	}
	privateKey.q = q
	return privateKey, nil
}

func parsePrivateKeyBytes(b []byte) (common.LmsAlgorithmType, common.LmsOtsAlgorithmType, uint32, common.ID, []byte, error) {
	if len(b) < 8 {
		return nil, nil, 0, common.ID{}, nil, common.Errorf(common.KindMalformed, "LmsPrivateKeyFromBytes(): input is too short")
	}

	// The typecode is bytes 0-3 (4 bytes)
	typecode, err := common.Uint32ToLmsType(binary.BigEndian.Uint32(b[0:4])).LmsType()
	if err != nil {
		return nil, nil, 0, common.ID{}, nil, err
	}
	// The OTS typecode is bytes 4-7 (4 bytes)
	otstype, err := common.Uint32ToLmotsType(binary.BigEndian.Uint32(b[4:8])).LmsOtsType()
	if err != nil {
		return nil, nil, 0, common.ID{}, nil, err
	}
	lmsparams, err := typecode.LmsParams()
	if err != nil {
		return nil, nil, 0, common.ID{}, nil, err
	}
	if len(b) < int(lmsparams.M+28) {
		return nil, nil, 0, common.ID{}, nil, common.Errorf(common.KindMalformed, "LmsPrivateKeyFromBytes(): input is too short")
	}

	// Internal counter is bytes 8-11 (4 bytes)
	q := binary.BigEndian.Uint32(b[8:12])
	// ID is bytes 12-27 (16 bytes)
	id := common.ID(b[12:28])
	// Seed is bytes 28+ (32 bytes for SHA-256)
	seed_end := lmsparams.M + 28
	seed := b[28:seed_end]

	return typecode, otstype, q, id, seed, nil
}

// GeneratePKTree generates the Merkle Tree needed to derive the public key and
// authentication path for any message.
func GeneratePKTree(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType, id common.ID, seed []byte) ([][]byte, error) {
	return auxdata.BuildFullTree(tc, otstc, id, seed)
}
