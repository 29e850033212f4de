package hss

import (
	"encoding/binary"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/lms"
)

// ToBytes serializes the entire private key stack -- every level's
// private key plus every non-bottom level's signature over its child's
// public key -- as a single blob, the shape handed to the persistence
// hook in Sign. It never serializes cached public keys or authentication
// trees: both are recomputed from each level's seed on load, the same
// advisory-cache discipline the aux-data layer uses.
func (priv *HssPrivateKey) ToBytes() []byte {
	var lBE [4]byte
	binary.BigEndian.PutUint32(lBE[:], uint32(len(priv.levels)))
	out := append([]byte(nil), lBE[:]...)

	for i := range priv.levels {
		out = append(out, priv.levels[i].ToBytes()...)
	}
	for i := range priv.sigs {
		sigBytes, err := priv.sigs[i].ToBytes()
		if err != nil {
			// priv.sigs[i] was produced by a successful Sign call against
			// priv.params[i], so its typecode is always valid here.
			panic(err)
		}
		out = append(out, sigBytes...)
	}
	return out
}

// HssPrivateKeyFromBytes is the inverse of ToBytes. Every level's public
// key and authentication tree is recomputed, not read back, matching the
// aux-data philosophy that recomputation from the seed is always the
// source of truth; pass through opts (notably WithAuxBudget) to control
// how each level recomputes its tree.
func HssPrivateKeyFromBytes(b []byte, opts ...Option) (HssPrivateKey, error) {
	o := buildOptions(opts)
	if len(b) < 4 {
		return HssPrivateKey{}, common.Errorf(common.KindMalformed, "hss.HssPrivateKeyFromBytes(): input too short")
	}
	l := binary.BigEndian.Uint32(b[0:4])
	if l == 0 || l > MaxLevels {
		return HssPrivateKey{}, common.Errorf(common.KindMalformed, "hss.HssPrivateKeyFromBytes(): invalid L=%d", l)
	}
	cur := b[4:]

	levels := make([]lms.LmsPrivateKey, l)
	pubs := make([]lms.LmsPublicKey, l)
	params := make([]LevelParam, l)
	for i := uint32(0); i < l; i++ {
		keyLen, err := lms.PeekPrivateKeyLength(cur)
		if err != nil {
			return HssPrivateKey{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssPrivateKeyFromBytes(): level %d", i)
		}
		if uint64(len(cur)) < keyLen {
			return HssPrivateKey{}, common.Errorf(common.KindMalformed, "hss.HssPrivateKeyFromBytes(): truncated level %d", i)
		}

		level, err := lms.LmsPrivateKeyFromBytes(cur[:keyLen])
		if err != nil {
			return HssPrivateKey{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssPrivateKeyFromBytes(): level %d", i)
		}
		cur = cur[keyLen:]

		if o.AuxBudgetBytes != 0 {
			level, err = level.WithAuxBudget(o.AuxBudgetBytes)
			if err != nil {
				return HssPrivateKey{}, err
			}
		}

		pub, err := level.Public()
		if err != nil {
			return HssPrivateKey{}, err
		}
		levels[i] = level
		pubs[i] = pub
		params[i] = LevelParam{LmsType: level.Type(), OtsType: level.OtsType()}
	}

	sigs := make([]lms.LmsSignature, l-1)
	for i := uint32(0); i+1 < l; i++ {
		sigLen, err := lms.PeekSignatureLength(cur)
		if err != nil {
			return HssPrivateKey{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssPrivateKeyFromBytes(): level %d signature", i)
		}
		if uint64(len(cur)) < sigLen {
			return HssPrivateKey{}, common.Errorf(common.KindMalformed, "hss.HssPrivateKeyFromBytes(): truncated level %d signature", i)
		}
		sig, err := lms.LmsSignatureFromBytes(cur[:sigLen])
		if err != nil {
			return HssPrivateKey{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssPrivateKeyFromBytes(): level %d signature", i)
		}
		cur = cur[sigLen:]
		sigs[i] = sig
	}
	if len(cur) != 0 {
		return HssPrivateKey{}, common.Errorf(common.KindMalformed, "hss.HssPrivateKeyFromBytes(): trailing bytes")
	}

	return HssPrivateKey{params: params, levels: levels, pubs: pubs, sigs: sigs}, nil
}
