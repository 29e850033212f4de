package hss

import (
	"crypto/rand"
	"io"

	"github.com/hbslabs/lms-core/lms/auxdata"
	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/lms"
)

// KeyGen builds a fresh L-level HSS key stack per RFC 8554 §6.1: every
// level gets its own fresh seed and identifier, and every non-bottom
// level signs its child's public key under leaf 0, advancing that
// level's q to 1. The stack's public key, priv.Public(), is (L, top-level
// LMS public key) and never changes until every level is exhausted.
func KeyGen(params []LevelParam, opts ...Option) (HssPrivateKey, error) {
	if len(params) == 0 || len(params) > MaxLevels {
		return HssPrivateKey{}, common.Errorf(common.KindInvalidParameter, "hss.KeyGen(): L must be in [1, %d], got %d", MaxLevels, len(params))
	}
	o := buildOptions(opts)

	levels := make([]lms.LmsPrivateKey, len(params))
	pubs := make([]lms.LmsPublicKey, len(params))
	for i, p := range params {
		level, err := newLevel(p, o)
		if err != nil {
			return HssPrivateKey{}, err
		}
		pub, err := level.Public()
		if err != nil {
			return HssPrivateKey{}, err
		}
		levels[i] = level
		pubs[i] = pub
	}

	sigs := make([]lms.LmsSignature, len(params)-1)
	for i := 0; i < len(params)-1; i++ {
		childBytes := pubs[i+1].ToBytes()
		sig, err := levels[i].Sign(childBytes, o.RNG)
		if err != nil {
			return HssPrivateKey{}, err
		}
		sigs[i] = sig
	}

	priv := HssPrivateKey{
		params: append([]LevelParam(nil), params...),
		levels: levels,
		pubs:   pubs,
		sigs:   sigs,
	}
	common.Logf("hss.KeyGen(): generated %d-level stack", len(params))
	return priv, nil
}

// newLevel derives one fresh LMS tree, seeded from o.RNG (crypto/rand.Reader
// if unset). When o.AuxBudgetBytes is nonzero the tree is built aux-backed
// rather than holding its full authentication tree in memory.
func newLevel(p LevelParam, o Options) (lms.LmsPrivateKey, error) {
	rng := o.RNG
	if rng == nil {
		rng = rand.Reader
	}
	lmsParams, err := p.LmsType.LmsParams()
	if err != nil {
		return lms.LmsPrivateKey{}, err
	}

	seed := make([]byte, lmsParams.M)
	if _, err := io.ReadFull(rng, seed); err != nil {
		return lms.LmsPrivateKey{}, err
	}
	idBytes := make([]byte, common.ID_LEN)
	if _, err := io.ReadFull(rng, idBytes); err != nil {
		return lms.LmsPrivateKey{}, err
	}
	id := common.ID(idBytes)

	if o.AuxBudgetBytes == 0 {
		return lms.NewPrivateKeyFromSeed(p.LmsType, p.OtsType, id, seed)
	}

	tree, _, _, err := auxdata.Build(p.LmsType, p.OtsType, id, seed, o.AuxBudgetBytes)
	if err != nil {
		return lms.LmsPrivateKey{}, err
	}
	return lms.NewPrivateKeyFromSeedWithAux(p.LmsType, p.OtsType, id, seed, tree)
}

// Public returns the stack's unchanging top-level public key.
func (priv *HssPrivateKey) Public() HssPublicKey {
	return HssPublicKey{l: uint32(len(priv.params)), top: priv.pubs[0]}
}

// Sign produces an HSS signature over msg, cascading a fresh bottom
// subtree into place first if the current one is exhausted (§4.10). The
// persistence hook in opts, if any, is invoked with the fully serialized
// HSS private key before the signature is returned; if it reports
// failure, Sign returns PersistenceFailed and leaves priv unchanged.
func (priv *HssPrivateKey) Sign(msg []byte, opts ...Option) (HssSignature, error) {
	o := buildOptions(opts)
	L := len(priv.params)
	bottom := L - 1

	snapshot := priv.clone()

	if isExhausted(&priv.levels[bottom]) {
		if err := priv.cascade(bottom, o); err != nil {
			*priv = snapshot
			return HssSignature{}, err
		}
	}

	finalSig, err := priv.levels[bottom].Sign(msg, o.RNG)
	if err != nil {
		*priv = snapshot
		return HssSignature{}, err
	}

	if o.Persist != nil {
		if !o.Persist(priv.ToBytes()) {
			*priv = snapshot
			return HssSignature{}, common.Errorf(common.KindPersistenceFailed, "hss.Sign(): persistence hook refused updated private key")
		}
	}

	chain := make([]signedPublicKey, L-1)
	for i := 0; i < L-1; i++ {
		chain[i] = signedPublicKey{sig: priv.sigs[i], pub: priv.pubs[i+1]}
	}

	return HssSignature{
		nspk:   uint32(L - 1),
		chain:  chain,
		finalS: finalSig,
	}, nil
}

// cascade implements §4.10 step 1: scanning upward from the bottom
// (index L-2) for the first level with spare leaf capacity, regenerating
// every level below it with fresh seeds/Is, then re-signing the new
// child chain back down to the bottom.
func (priv *HssPrivateKey) cascade(bottom int, o Options) error {
	j := -1
	for k := bottom - 1; k >= 0; k-- {
		if !isExhausted(&priv.levels[k]) {
			j = k
			break
		}
	}
	if j < 0 {
		return common.Errorf(common.KindKeyExhausted, "hss.Sign(): all levels exhausted, cannot cascade")
	}

	for k := j + 1; k < len(priv.params); k++ {
		level, err := newLevel(priv.params[k], o)
		if err != nil {
			return err
		}
		pub, err := level.Public()
		if err != nil {
			return err
		}
		priv.levels[k] = level
		priv.pubs[k] = pub
	}

	for k := j; k < len(priv.params)-1; k++ {
		childBytes := priv.pubs[k+1].ToBytes()
		sig, err := priv.levels[k].Sign(childBytes, o.RNG)
		if err != nil {
			return err
		}
		priv.sigs[k] = sig
	}

	common.Logf("hss.Sign(): cascaded from level %d downward", j+1)
	return nil
}

func isExhausted(level *lms.LmsPrivateKey) bool {
	// Sign itself returns KeyExhausted at the boundary; probing Q()
	// against the level's tree height lets the cascade decide without
	// consuming a leaf.
	return level.Exhausted()
}

// clone makes a shallow copy of the mutable per-level state so Sign can
// roll back atomically on any failure after it has started mutating the
// stack (a cascade, in particular, touches several levels before the
// persistence hook is consulted).
func (priv *HssPrivateKey) clone() HssPrivateKey {
	return HssPrivateKey{
		params: priv.params,
		levels: append([]lms.LmsPrivateKey(nil), priv.levels...),
		pubs:   append([]lms.LmsPublicKey(nil), priv.pubs...),
		sigs:   append([]lms.LmsSignature(nil), priv.sigs...),
	}
}
