package hss_test

import (
	"testing/quick"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hbslabs/lms-core/lms/common"
	"github.com/hbslabs/lms-core/lms/hss"
	"github.com/hbslabs/lms-core/lms/store"
)

func twoLevelParams() []hss.LevelParam {
	return []hss.LevelParam{
		{LmsType: common.LMS_SHA256_M32_H5, OtsType: common.LMOTS_SHA256_N32_W4},
		{LmsType: common.LMS_SHA256_M32_H5, OtsType: common.LMOTS_SHA256_N32_W4},
	}
}

var _ = Describe("HSS", func() {
	var priv hss.HssPrivateKey
	var pub hss.HssPublicKey

	BeforeEach(func() {
		var err error
		priv, err = hss.KeyGen(twoLevelParams())
		Expect(err).NotTo(HaveOccurred())
		pub = priv.Public()
	})

	It("verifies a freshly generated key's signature", func() {
		msg := []byte("o frabjous day")
		sig, err := priv.Sign(msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Verify(msg, sig)).To(BeTrue())
	})

	It("rejects a signature after a single bit of the message is flipped", func() {
		msg := []byte("callooh callay")
		sig, err := priv.Sign(msg)
		Expect(err).NotTo(HaveOccurred())

		tampered := append([]byte(nil), msg...)
		tampered[0] ^= 1
		Expect(pub.Verify(tampered, sig)).To(BeFalse())
	})

	It("cascades the bottom level on exhaustion, and every signature before and after still verifies", func() {
		// H5 gives the bottom level 32 leaves; the 33rd message forces
		// a fresh bottom subtree signed by the (still fresh) top level.
		var sigs []hss.HssSignature
		var msgs [][]byte
		for i := 0; i < 33; i++ {
			msg := []byte{byte(i)}
			sig, err := priv.Sign(msg)
			Expect(err).NotTo(HaveOccurred())
			sigs = append(sigs, sig)
			msgs = append(msgs, msg)
		}
		for i := range sigs {
			Expect(pub.Verify(msgs[i], sigs[i])).To(BeTrue())
		}
	})

	It("reports KeyExhausted once every level in the stack is spent", func() {
		oneLevel := []hss.LevelParam{
			{LmsType: common.LMS_SHA256_M32_H5, OtsType: common.LMOTS_SHA256_N32_W8},
		}
		solo, err := hss.KeyGen(oneLevel)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 32; i++ {
			_, err := solo.Sign([]byte{byte(i)})
			Expect(err).NotTo(HaveOccurred())
		}
		_, err = solo.Sign([]byte("one too many"))
		Expect(err).To(HaveOccurred())
		Expect(common.IsKind(err, common.KindKeyExhausted)).To(BeTrue())
	})

	It("refuses to release a signature when the persistence hook fails, leaving the key unchanged", func() {
		mem := &store.MemStore{FailNext: true}
		before := priv.Public()

		_, err := priv.Sign([]byte("should not be released"), hss.WithStore(mem))
		Expect(err).To(HaveOccurred())
		Expect(common.IsKind(err, common.KindPersistenceFailed)).To(BeTrue())

		after := priv.Public()
		Expect(after.Top().Key()).To(Equal(before.Top().Key()))

		sig, err := priv.Sign([]byte("this one should work"), hss.WithStore(mem))
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Verify([]byte("this one should work"), sig)).To(BeTrue())
		Expect(mem.Bytes).NotTo(BeEmpty())
	})

	It("round-trips HSS public key and signature serialization", func() {
		property := func(seed byte) bool {
			msg := []byte{seed, seed, seed}
			sig, err := priv.Sign(msg)
			if err != nil {
				return false
			}

			sigBytes, err := sig.ToBytes()
			if err != nil {
				return false
			}
			parsedSig, err := hss.HssSignatureFromBytes(sigBytes)
			if err != nil {
				return false
			}
			reserialized, err := parsedSig.ToBytes()
			if err != nil {
				return false
			}

			pubBytes := pub.ToBytes()
			parsedPub, err := hss.HssPublicKeyFromBytes(pubBytes)
			if err != nil {
				return false
			}

			return string(reserialized) == string(sigBytes) &&
				parsedPub.Verify(msg, parsedSig)
		}
		Expect(quick.Check(property, &quick.Config{MaxCount: 8})).To(Succeed())
	})
})
