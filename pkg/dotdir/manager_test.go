package dotdir_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsakeco/keepsake/pkg/dotdir"
)

func TestDotdir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dotdir Suite")
}

var _ = Describe("Manager", func() {
	var mgr *dotdir.Manager

	BeforeEach(func() {
		mgr = dotdir.NewManager()
	})

	It("uses the override directory when provided", func() {
		override := filepath.Join(GinkgoT().TempDir(), "custom")

		target, err := mgr.Target(override)
		Expect(err).NotTo(HaveOccurred())
		Expect(target).To(Equal(override))

		info, err := os.Stat(target)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("creates the override directory when missing", func() {
		override := filepath.Join(GinkgoT().TempDir(), "nested", "dir")

		target, err := mgr.Target(override)
		Expect(err).NotTo(HaveOccurred())
		Expect(target).To(BeADirectory())
	})
})
