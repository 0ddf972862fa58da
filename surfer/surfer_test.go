package surfer_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ibexdbg/rvreplay/surfer"
)

var _ = Describe("NullAdapter", func() {
	It("never fails", func() {
		var a surfer.NullAdapter
		Expect(a.Update(1234)).To(Succeed())
	})
})

var _ = Describe("FileAdapter", func() {
	It("appends one line per update", func() {
		dir, err := os.MkdirTemp("", "surfer")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		path := filepath.Join(dir, "cursor.log")
		a, err := surfer.NewFileAdapter(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Update(10)).To(Succeed())
		Expect(a.Update(25)).To(Succeed())
		Expect(a.Close()).To(Succeed())

		contents, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(contents)).To(Equal("10\n25\n"))
	})
})
