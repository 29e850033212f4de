// Package lms implements Leighton-Micali Hash-Based Signatures (RFC 8554)
//
// This file implements the LmsSignature type, including serialization.
package lms

import (
	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/ots"

	"encoding/binary"
)

// NewLmsSignature returns a LmsSignature, given an LMS algorithm type, internal counter,
// LM-OTS signature, and authentication path.
func NewLmsSignature(tc common.LmsAlgorithmType, q uint32, otsig ots.LmsOtsSignature, path [][]byte) (LmsSignature, error) {
	tc, err := tc.LmsType()
	if err != nil {
		return LmsSignature{}, err
	}
	params, err := tc.LmsParams()
	if err != nil {
		return LmsSignature{}, err
	}
	var tmp uint32 = 1 << params.H

	// From step 2i of Algorithm 6a in RFC 8554
	if q >= tmp {
		return LmsSignature{}, common.Errorf(common.KindMalformed, "NewLmsSignature(): internal counter %d out of range for height %d", q, params.H)
	}

	// There should be H elements in the authpath
	if uint64(len(path)) != params.H {
		return LmsSignature{}, common.Errorf(common.KindMalformed, "NewLmsSignature(): authentication path has %d elements, want %d", len(path), params.H)
	}

	return LmsSignature{
		typecode: tc,
		q:        q,
		ots:      otsig,
		path:     path,
	}, nil
}

// PeekSignatureLength returns the total byte length of the LMS
// signature that starts at b, without requiring the buffer to already be
// sliced to exactly one signature. Used to split a concatenation of
// signatures (as found inside an HSS signature) without already knowing
// each one's length.
func PeekSignatureLength(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, common.Errorf(common.KindMalformed, "PeekSignatureLength(): input too short")
	}
	otstc := common.Uint32ToLmotsType(binary.BigEndian.Uint32(b[4:8]))
	if _, err := otstc.LmsOtsType(); err != nil {
		return 0, err
	}
	otssiglen, err := otstc.LmsOtsSigLength()
	if err != nil {
		return 0, err
	}
	otsigmax := 4 + otssiglen
	if uint64(len(b)) < otsigmax+4 {
		return 0, common.Errorf(common.KindMalformed, "PeekSignatureLength(): input too short for LMS typecode")
	}
	typecode := common.Uint32ToLmsType(binary.BigEndian.Uint32(b[otsigmax : otsigmax+4]))
	if _, err := typecode.LmsType(); err != nil {
		return 0, err
	}
	return typecode.LmsSigLength(otstc)
}

// LmsSignatureFromBytes returns an LmsSignature represented by b.
// This is the inverse of the ToBytes() on LmsSignature.
func LmsSignatureFromBytes(b []byte) (LmsSignature, error) {
	if len(b) < 8 {
		return LmsSignature{}, common.Errorf(common.KindMalformed, "LmsSignatureFromBytes(): signature is too short")
	}

	var err error

	// The internal counter is bytes 0-3
	q := binary.BigEndian.Uint32(b[0:4])

	// The OTS signature starts at byte 4, with the typecode first
	otstc := common.Uint32ToLmotsType(binary.BigEndian.Uint32(b[4:8]))
	// Return error if not a valid LM-OTS algorithm:
	_, err = otstc.LmsOtsType()
	if err != nil {
		return LmsSignature{}, err
	}

	// 4 + LM-OTS signature length is the first byte after the LM-OTS sig
	otssiglen, err := otstc.LmsOtsSigLength()
	if err != nil {
		return LmsSignature{}, err
	}
	otsigmax := 4 + otssiglen
	if uint64(len(b)) < otsigmax+4 {
		// We are only ensuring that we can read the LMS typecode
		return LmsSignature{}, common.Errorf(common.KindMalformed, "LmsSignatureFromBytes(): signature is too short for LM-OTS typecode")
	}
	// Now that we know we have enough bytes for LMS, look at the typecode
	typecode := common.Uint32ToLmsType(binary.BigEndian.Uint32(b[otsigmax : otsigmax+4]))
	// Return error if not a valid LMS algorithm
	_, err = typecode.LmsType()
	if err != nil {
		return LmsSignature{}, err
	}

	// With both typecodes, we can calculate the total signature length
	siglen, err := typecode.LmsSigLength(otstc)
	if err != nil {
		return LmsSignature{}, err
	}
	if siglen != uint64(len(b)) {
		return LmsSignature{}, common.Errorf(common.KindMalformed, "LmsSignatureFromBytes(): invalid LMS signature length %d, want %d", len(b), siglen)
	}

	// Parse the embedded LM-OTS signature
	otsig, err := ots.LmsOtsSignatureFromBytes(b[4:otsigmax])
	if err != nil {
		return LmsSignature{}, err
	}

	// With the lengths and OTS sig in hand, we can now parse the LMS sig
	lmsparams, err := typecode.LmsParams()
	if err != nil {
		return LmsSignature{}, err
	}
	var height = lmsparams.H
	m := lmsparams.M
	var start = otsigmax + 4

	// Explicitly check that q < 2^H
	if q >= (1 << height) {
		return LmsSignature{}, common.Errorf(common.KindMalformed, "LmsSignatureFromBytes(): internal counter %d out of range for height %d", q, height)
	}

	// Read the authentication path
	var path = make([][]byte, lmsparams.H)
	var i uint64
	for i = 0; i < height; i++ {
		end := start + m
		path[i] = b[start:end]
		start += m
	}

	return LmsSignature{
		typecode: typecode,
		q:        q,
		ots:      otsig,
		path:     path,
	}, nil
}

// ToBytes() serializes the signature into a byte string for transmission or storage.
func (sig *LmsSignature) ToBytes() ([]byte, error) {
	var serialized []byte
	var u32_be [4]byte
	typecode, err := sig.typecode.LmsType()
	if err != nil {
		return nil, err
	}
	params, err := typecode.LmsParams()
	if err != nil {
		return nil, err
	}

	// First 4 bytes: q
	binary.BigEndian.PutUint32(u32_be[:], sig.q)
	serialized = append(serialized, u32_be[:]...)

	// Encode the LM-OTS signature next
	ots_sig, err := sig.ots.ToBytes()
	if err != nil {
		return nil, err
	}

	serialized = append(serialized, ots_sig[:]...)

	// Next 4 bytes: LMS typecode
	binary.BigEndian.PutUint32(u32_be[:], typecode.ToUint32())
	serialized = append(serialized, u32_be[:]...)

	// Next M * H bytes: Path
	height := int(params.H)
	for i := 0; i < height; i++ {
		serialized = append(serialized, sig.path[i]...)
	}

	return serialized, nil
}
