package id_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/common/id"
)

var _ = Describe("id", func() {
	It("derives a stable node id within range", func() {
		a := id.NodeIDFor("refbot-host-1")
		Expect(id.NodeIDFor("refbot-host-1")).To(Equal(a))
		Expect(a).To(BeNumerically(">=", 0))
		Expect(a).To(BeNumerically("<", 1024))
	})

	It("generates increasing ids", func() {
		Expect(id.Init(id.NodeIDFor("test"))).To(Succeed())
		first := id.New()
		second := id.New()
		Expect(second).To(BeNumerically(">", first))
	})
})
