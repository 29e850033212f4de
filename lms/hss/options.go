package hss

import (
	"io"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/store"
)

// Options configures KeyGen and Sign. The zero value is usable: a nil
// RNG falls back to crypto/rand.Reader, a zero AuxBudgetBytes means
// every level holds its full authentication tree in memory, and a nil
// Persist/Store means Sign advances q in memory only.
type Options struct {
	RNG            io.Reader
	AuxBudgetBytes uint64
	Persist        common.UpdateFunc
	Logf           func(format string, a ...interface{})
}

// Option mutates an in-progress Options value.
type Option func(*Options)

// WithRNG overrides the source of randomness used to derive level seeds
// and identifiers (in KeyGen and in a Sign that cascades) and the LM-OTS
// randomizers of every signature KeyGen and Sign produce.
func WithRNG(r io.Reader) Option {
	return func(o *Options) { o.RNG = r }
}

// WithAuxBudget caps, in bytes, how much of each level's authentication
// tree is cached rather than recomputed on demand. See lms/auxdata.
func WithAuxBudget(n uint64) Option {
	return func(o *Options) { o.AuxBudgetBytes = n }
}

// WithPersist installs the write-then-release hook Sign must satisfy
// before releasing a signature. See common.UpdateFunc.
func WithPersist(p common.UpdateFunc) Option {
	return func(o *Options) { o.Persist = p }
}

// WithStore is a convenience over WithPersist for callers using one of
// the lms/store backings directly.
func WithStore(s store.KeyStore) Option {
	return func(o *Options) { o.Persist = s.Save }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
