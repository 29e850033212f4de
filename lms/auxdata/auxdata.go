// Package auxdata implements the optional authenticated cache of LMS
// Merkle tree internal nodes described in RFC 8554's discussion of
// signing performance: a persistent structure that lets a signer avoid
// holding (or recomputing) the entire 2^H-leaf authentication tree
// between signatures.
//
// The cache is advisory. Recomputation from the seed is always the
// source of truth; a tampered or stale aux blob is simply ignored
// (see FromBytes), never trusted to change what gets signed.
package auxdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/ots"
)

// Magic identifies an aux-data blob produced by this package.
const Magic uint32 = 0x4c4d5341 // "LMSA"

var macContext = []byte{0xaa, 0xd5, 0x1a, 0xee, 0xfc} // arbitrary, disjoint from D_* separators

// Tree holds the subset of Merkle internal nodes recorded for one LMS
// private key, indexed by the spec's "level" numbering: level 0 is the
// leaves (2^H of them), level H is the root (1 node). Each stored level
// holds its nodes in ascending tree-index order.
type Tree struct {
	height uint64
	n      uint64
	levels map[uint64][][]byte
}

// Node returns the cached node at (level, index), if recorded.
func (t *Tree) Node(level, index uint64) ([]byte, bool) {
	if t == nil {
		return nil, false
	}
	nodes, ok := t.levels[level]
	if !ok || index >= uint64(len(nodes)) {
		return nil, false
	}
	return nodes[index], true
}

// NodeByR looks up the node for RFC 8554 node number r (root is 1) at the
// given tree height and depth-from-root d (d = floor(log2(r))).
func (t *Tree) NodeByR(r uint32, height, d uint64) ([]byte, bool) {
	if t == nil {
		return nil, false
	}
	level := height - d
	start := uint32(1) << d
	return t.Node(level, uint64(r-start))
}

// Levels reports which levels are recorded, for diagnostics.
func (t *Tree) Levels() []uint64 {
	if t == nil {
		return nil
	}
	out := make([]uint64, 0, len(t.levels))
	for l := range t.levels {
		out = append(out, l)
	}
	return out
}

// BuildFullTree computes every node of the LMS Merkle tree for (tc, otstc,
// id, seed), returned as a 1-indexed-by-(r-1) array: index r-1 holds T[r]
// in RFC 8554's node numbering (root is index 0).
func BuildFullTree(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType, id common.ID, seed []byte) ([][]byte, error) {
	params, err := tc.LmsParams()
	if err != nil {
		return nil, err
	}
	otsParams, err := otstc.Params()
	if err != nil {
		return nil, err
	}

	treeNodes := (uint32(1) << (params.H + 1)) - 1
	leaves := uint32(1) << params.H
	authtree := make([][]byte, treeNodes)

	var rBE [4]byte
	for i := uint32(0); i < leaves; i++ {
		r := i + leaves
		otsPriv, err := ots.NewPrivateKeyFromSeed(otstc, i, id, seed)
		if err != nil {
			return nil, err
		}
		otsPub, err := otsPriv.Public()
		if err != nil {
			return nil, err
		}

		binary.BigEndian.PutUint32(rBE[:], r)
		hasher := otsParams.H.New()
		common.HashWrite(hasher, id[:])
		common.HashWrite(hasher, rBE[:])
		common.HashWrite(hasher, common.D_LEAF[:])
		common.HashWrite(hasher, otsPub.Key())
		authtree[r-1] = hasher.Sum(nil)

		j := i
		for j%2 == 1 {
			r = (r - 1) >> 1
			j = (j - 1) >> 1
			hasher := otsParams.H.New()
			binary.BigEndian.PutUint32(rBE[:], r)
			common.HashWrite(hasher, id[:])
			common.HashWrite(hasher, rBE[:])
			common.HashWrite(hasher, common.D_INTR[:])
			common.HashWrite(hasher, authtree[2*r-1])
			common.HashWrite(hasher, authtree[2*r])
			authtree[r-1] = hasher.Sum(nil)
		}
	}
	return authtree, nil
}

// SelectLevels returns the set of levels (spec numbering, 0 = leaves,
// height = root) that fit within budgetBytes, greedily choosing the
// levels closest to the root first since those amortize over the most
// signing operations before recomputation is needed further down the
// tree.
func SelectLevels(height uint64, n uint64, budgetBytes uint64) []uint64 {
	var chosen []uint64
	var spent uint64
	// d is depth from the root: d=0 is the root (level=height), d=height
	// is the leaves (level=0).
	for d := uint64(0); d <= height; d++ {
		level := height - d
		cost := (uint64(1) << d) * n
		if spent+cost > budgetBytes {
			break
		}
		spent += cost
		chosen = append(chosen, level)
	}
	return chosen
}

// Build computes the full tree once, then retains only the nodes at the
// levels SelectLevels picks for budgetBytes. It returns the resulting
// Tree, the Merkle root (T[1]), and the tree's authenticated wire
// encoding (see toBytes).
func Build(tc common.LmsAlgorithmType, otstc common.LmsOtsAlgorithmType, id common.ID, seed []byte, budgetBytes uint64) (*Tree, []byte, []byte, error) {
	params, err := tc.LmsParams()
	if err != nil {
		return nil, nil, nil, err
	}
	full, err := BuildFullTree(tc, otstc, id, seed)
	if err != nil {
		return nil, nil, nil, err
	}

	levels := SelectLevels(params.H, params.M, budgetBytes)
	t := &Tree{height: params.H, n: params.M, levels: map[uint64][][]byte{}}
	for _, level := range levels {
		d := params.H - level
		start := uint64(1) << d // first node-number at this depth
		count := uint64(1) << d
		nodes := make([][]byte, count)
		for i := uint64(0); i < count; i++ {
			nodes[i] = full[start+i-1]
		}
		t.levels[level] = nodes
	}

	blob, err := t.toBytes(id, seed)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, full[0], blob, nil
}

// macKey derives the HMAC key for an aux-data blob: H(seed || 0xaux).
func macKey(seed []byte) []byte {
	h := sha256.New()
	h.Write(seed)
	h.Write(macContext)
	return h.Sum(nil)
}

// toBytes serializes the manifest and recorded nodes, in ascending-level
// order, followed by an HMAC-SHA256 tag over everything preceding it.
func (t *Tree) toBytes(id common.ID, seed []byte) ([]byte, error) {
	var bitmap uint32
	for level := range t.levels {
		bitmap |= 1 << level
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], bitmap)

	for level := uint64(0); level <= t.height; level++ {
		nodes, ok := t.levels[level]
		if !ok {
			continue
		}
		for _, node := range nodes {
			buf = append(buf, node...)
		}
	}

	mac := hmac.New(sha256.New, macKey(seed))
	mac.Write(buf)
	buf = append(buf, mac.Sum(nil)...)
	return buf, nil
}

// FromBytes parses an aux-data blob and checks its MAC against seed. If the
// MAC does not validate — a corrupted file, a blob from a different key, a
// tampered cache — FromBytes returns (nil, false, nil): the aux cache is
// advisory, so an untrusted blob is silently discarded rather than treated
// as an error. A non-nil error means the blob is structurally broken: too
// short or with a bad magic (before the MAC check), or, once the MAC
// validates, with a body that does not match its level bitmap.
func FromBytes(b []byte, tc common.LmsAlgorithmType, seed []byte) (*Tree, bool, error) {
	params, err := tc.LmsParams()
	if err != nil {
		return nil, false, err
	}
	if len(b) < 8+sha256.Size {
		return nil, false, common.Errorf(common.KindMalformed, "auxdata.FromBytes(): blob too short")
	}
	magic := binary.BigEndian.Uint32(b[0:4])
	if magic != Magic {
		return nil, false, common.Errorf(common.KindMalformed, "auxdata.FromBytes(): bad magic")
	}
	bitmap := binary.BigEndian.Uint32(b[4:8])

	body := b[:len(b)-sha256.Size]
	tag := b[len(b)-sha256.Size:]

	expected := hmac.New(sha256.New, macKey(seed))
	expected.Write(body)
	if !hmac.Equal(expected.Sum(nil), tag) {
		return nil, false, nil
	}

	t := &Tree{height: params.H, n: params.M, levels: map[uint64][][]byte{}}
	cur := body[8:]
	for level := uint64(0); level <= params.H; level++ {
		if bitmap&(1<<level) == 0 {
			continue
		}
		d := params.H - level
		count := uint64(1) << d
		need := count * params.M
		if uint64(len(cur)) < need {
			return nil, false, common.Errorf(common.KindMalformed, "auxdata.FromBytes(): truncated level %d", level)
		}
		nodes := make([][]byte, count)
		for i := uint64(0); i < count; i++ {
			nodes[i] = cur[i*params.M : (i+1)*params.M]
		}
		t.levels[level] = nodes
		cur = cur[need:]
	}
	if len(cur) != 0 {
		return nil, false, common.Errorf(common.KindMalformed, "auxdata.FromBytes(): trailing bytes after recorded levels")
	}

	return t, true, nil
}
