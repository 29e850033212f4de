package hss

import (
	"encoding/binary"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/lms"
)

// NewHssPublicKey wraps an already-parsed top-level LMS public key with
// its stack depth.
func NewHssPublicKey(l uint32, top lms.LmsPublicKey) (HssPublicKey, error) {
	if l == 0 || l > MaxLevels {
		return HssPublicKey{}, common.Errorf(common.KindInvalidParameter, "hss.NewHssPublicKey(): L must be in [1, %d], got %d", MaxLevels, l)
	}
	return HssPublicKey{l: l, top: top}, nil
}

// ToBytes serializes the public key as u32(L) || LMS-public-key, per
// RFC 8554 §6.2.
func (pub *HssPublicKey) ToBytes() []byte {
	var lBE [4]byte
	binary.BigEndian.PutUint32(lBE[:], pub.l)
	return append(lBE[:], pub.top.ToBytes()...)
}

// HssPublicKeyFromBytes is the inverse of ToBytes.
func HssPublicKeyFromBytes(b []byte) (HssPublicKey, error) {
	if len(b) < 4 {
		return HssPublicKey{}, common.Errorf(common.KindMalformed, "hss.HssPublicKeyFromBytes(): input too short")
	}
	l := binary.BigEndian.Uint32(b[0:4])
	if l == 0 || l > MaxLevels {
		return HssPublicKey{}, common.Errorf(common.KindMalformed, "hss.HssPublicKeyFromBytes(): invalid L=%d", l)
	}
	top, err := lms.LmsPublicKeyFromBytes(b[4:])
	if err != nil {
		return HssPublicKey{}, common.WrapErrorf(common.KindMalformed, err, "hss.HssPublicKeyFromBytes(): bad top-level LMS public key")
	}
	return HssPublicKey{l: l, top: top}, nil
}

// Verify checks sig over msg against pub, per RFC 8554 §6.3 / spec §4.11:
// every level's signature over its child's public key must verify,
// chaining from the (trusted) top-level key down to the bottom, which
// must then verify the actual message.
func (pub *HssPublicKey) Verify(msg []byte, sig HssSignature) bool {
	if sig.nspk+1 != pub.l {
		return false
	}
	if uint32(len(sig.chain)) != sig.nspk {
		return false
	}

	current := pub.top
	for _, link := range sig.chain {
		if !current.Verify(link.pub.ToBytes(), link.sig) {
			return false
		}
		current = link.pub
	}
	return current.Verify(msg, sig.finalS)
}
