package hss

import (
	"encoding/binary"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/lms"
)

// ToBytes serializes the signature as:
//
//	u32(Nspk) || [LMS-sig_i || LMS-pub_{i+1}]_{i=0..Nspk-1} || LMS-sig_{bottom}
//
// per RFC 8554 §6.2 / spec §6.
func (sig *HssSignature) ToBytes() ([]byte, error) {
	var nspkBE [4]byte
	binary.BigEndian.PutUint32(nspkBE[:], sig.nspk)
	out := append([]byte(nil), nspkBE[:]...)

	for _, link := range sig.chain {
		sigBytes, err := link.sig.ToBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, sigBytes...)
		out = append(out, link.pub.ToBytes()...)
	}

	finalBytes, err := sig.finalS.ToBytes()
	if err != nil {
		return nil, err
	}
	out = append(out, finalBytes...)
	return out, nil
}

// HssSignatureFromBytes is the inverse of ToBytes. Every signature and
// public key in the chain is self-describing via its own type codes, so
// their lengths are discovered incrementally via PeekSignatureLength/
// PeekPublicKeyLength rather than assumed up front.
func HssSignatureFromBytes(b []byte) (HssSignature, error) {
	if len(b) < 4 {
		return HssSignature{}, common.Errorf(common.KindMalformed, "hss.HssSignatureFromBytes(): input too short")
	}
	nspk := binary.BigEndian.Uint32(b[0:4])
	if nspk >= MaxLevels {
		return HssSignature{}, common.Errorf(common.KindMalformed, "hss.HssSignatureFromBytes(): invalid Nspk=%d", nspk)
	}
	cur := b[4:]

	chain := make([]signedPublicKey, nspk)
	for i := uint32(0); i < nspk; i++ {
		sigLen, err := lms.PeekSignatureLength(cur)
		if err != nil {
			return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): level %d signature", i)
		}
		if uint64(len(cur)) < sigLen {
			return HssSignature{}, common.Errorf(common.KindMalformed, "hss.HssSignatureFromBytes(): truncated level %d signature", i)
		}
		levelSig, err := lms.LmsSignatureFromBytes(cur[:sigLen])
		if err != nil {
			return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): level %d signature", i)
		}
		cur = cur[sigLen:]

		pubLen, err := lms.PeekPublicKeyLength(cur)
		if err != nil {
			return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): level %d public key", i+1)
		}
		if uint64(len(cur)) < pubLen {
			return HssSignature{}, common.Errorf(common.KindMalformed, "hss.HssSignatureFromBytes(): truncated level %d public key", i+1)
		}
		childPub, err := lms.LmsPublicKeyFromBytes(cur[:pubLen])
		if err != nil {
			return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): level %d public key", i+1)
		}
		cur = cur[pubLen:]

		chain[i] = signedPublicKey{sig: levelSig, pub: childPub}
	}

	finalLen, err := lms.PeekSignatureLength(cur)
	if err != nil {
		return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): final signature")
	}
	if uint64(len(cur)) != finalLen {
		return HssSignature{}, common.Errorf(common.KindMalformed, "hss.HssSignatureFromBytes(): trailing or truncated bytes after final signature")
	}
	finalSig, err := lms.LmsSignatureFromBytes(cur)
	if err != nil {
		return HssSignature{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssSignatureFromBytes(): final signature")
	}

	return HssSignature{nspk: nspk, chain: chain, finalS: finalSig}, nil
}
