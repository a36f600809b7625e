package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsakeco/keepsake/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	Describe("NewDefaultConfig", func() {
		It("populates every section", func() {
			cfg := config.NewDefaultConfig()

			Expect(cfg.API.Listen).To(Equal(":8787"))
			Expect(cfg.Memory.Provider).To(Equal("sqlitevec"))
			Expect(cfg.Memory.Dimensions).To(Equal(uint(768)))
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
			Expect(cfg.Retrieval.MaxChunks).To(Equal(5))
			Expect(cfg.Retrieval.ChunkFloor).To(BeNumerically("~", 0.3, 1e-6))
			Expect(cfg.Retrieval.FactFloor).To(BeNumerically("~", 0.35, 1e-6))
			Expect(cfg.Learning.ConfidenceFloor).To(BeNumerically("~", 0.7, 1e-6))
			Expect(cfg.Learning.RecentFacts).To(Equal(50))
			Expect(cfg.Events.Provider).To(Equal("nop"))
		})
	})

	Describe("Get and Set", func() {
		It("round-trips string keys", func() {
			cfg := config.NewDefaultConfig()

			Expect(cfg.Set("memory.provider", "postgres")).To(Succeed())
			got, err := cfg.Get("memory.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("postgres"))
		})

		It("parses numeric keys", func() {
			cfg := config.NewDefaultConfig()

			Expect(cfg.Set("memory.dimensions", "1024")).To(Succeed())
			Expect(cfg.Memory.Dimensions).To(Equal(uint(1024)))
		})

		It("rejects malformed numeric values", func() {
			cfg := config.NewDefaultConfig()
			Expect(cfg.Set("memory.dimensions", "lots")).NotTo(Succeed())
		})

		It("rejects unknown keys", func() {
			cfg := config.NewDefaultConfig()
			Expect(cfg.Set("nope.nothing", "x")).NotTo(Succeed())
			_, err := cfg.Get("nope.nothing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Configer", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("loads defaults when no config file exists", func() {
			cfger, err := config.NewConfiger(dir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Memory.Provider).To(Equal("sqlitevec"))
		})

		It("saves and reloads a modified config", func() {
			cfger, err := config.NewConfiger(dir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Memory.Provider = "qdrant"
			cfg.Memory.Target = "localhost:6334"
			Expect(cfger.SaveConfig(cfg)).To(Succeed())

			reloaded, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Memory.Provider).To(Equal("qdrant"))
			Expect(reloaded.Memory.Target).To(Equal("localhost:6334"))

			// Defaults still fill the sections the file never touched.
			Expect(reloaded.Retrieval.MaxChunks).To(Equal(5))
		})

		It("fills zero values from defaults when the file is sparse", func() {
			path := filepath.Join(dir, "config.toml")
			Expect(os.WriteFile(path, []byte("[api]\nlisten = \":9999\"\n"), 0o644)).To(Succeed())

			cfger, err := config.NewConfiger(dir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9999"))
			Expect(cfg.Embedding.Model).To(Equal("nomic-embed-text"))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("contains the dotted key names", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).To(ContainElements("memory.provider", "embedding.model", "events.topic"))
			Expect(config.IsValidConfigKey("memory.provider")).To(BeTrue())
			Expect(config.IsValidConfigKey("bogus")).To(BeFalse())
		})
	})
})
