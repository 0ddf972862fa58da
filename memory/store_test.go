package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ibexdbg/rvreplay/memory"
)

var _ = Describe("Store", func() {
	var (
		im *memory.Image
		s  *memory.Store
	)

	BeforeEach(func() {
		im = memory.NewImage()
		im.AddSegment(0x1000, []byte{0x00, 0x00, 0x00, 0x00})
		s = memory.NewStore(im)
	})

	Describe("before any write", func() {
		It("falls back to the initial image", func() {
			b, err := s.ReadByte(0x1000, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0x00)))
		})

		It("reports UnmappedError for an address outside the image", func() {
			_, err := s.ReadByte(0x9000, 100)
			Expect(err).To(HaveOccurred())
			var unmapped *memory.UnmappedError
			Expect(err).To(BeAssignableToTypeOf(unmapped))
		})
	})

	Describe("versioned resolution", func() {
		BeforeEach(func() {
			s.Write(10, 0x1000, []byte{0xAA})
			s.Write(20, 0x1000, []byte{0xBB})
		})

		It("returns the initial value before the first write's cycle", func() {
			b, err := s.ReadByte(0x1000, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0x00)))
		})

		It("returns the write exactly at its own cycle", func() {
			b, err := s.ReadByte(0x1000, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0xAA)))
		})

		It("returns the most recent write at or before the query cycle", func() {
			b, err := s.ReadByte(0x1000, 15)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0xAA)))
		})

		It("returns the newest write once its cycle is reached", func() {
			b, err := s.ReadByte(0x1000, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0xBB)))
		})

		It("holds the newest write for any later cycle", func() {
			b, err := s.ReadByte(0x1000, 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0xBB)))
		})
	})

	Describe("Read over a byte range", func() {
		It("reads a multi-byte range spanning mixed written and initial bytes", func() {
			s.Write(5, 0x1001, []byte{0x11, 0x22})

			data, err := s.Read(0x1000, 4, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{0x00, 0x11, 0x22, 0x00}))
		})

		It("fails the whole read if any byte in the range is unmapped", func() {
			_, err := s.Read(0x1002, 8, 100)
			Expect(err).To(HaveOccurred())
		})

		It("produces identical results for a range read and per-byte ReadByte calls", func() {
			s.Write(5, 0x1000, []byte{0x42})

			whole, err := s.Read(0x1000, 2, 100)
			Expect(err).NotTo(HaveOccurred())

			b0, err := s.ReadByte(0x1000, 100)
			Expect(err).NotTo(HaveOccurred())
			b1, err := s.ReadByte(0x1001, 100)
			Expect(err).NotTo(HaveOccurred())

			Expect(whole).To(Equal([]byte{b0, b1}))
		})
	})

	Describe("page cache invalidation across cycle changes", func() {
		It("does not serve a stale snapshot after the query cycle moves", func() {
			s.Write(10, 0x1000, []byte{0xAA})
			s.Write(20, 0x1000, []byte{0xBB})

			_, err := s.Read(0x1000, 1, 15)
			Expect(err).NotTo(HaveOccurred())

			b, err := s.Read(0x1000, 1, 25)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal([]byte{0xBB}))

			b, err = s.Read(0x1000, 1, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal([]byte{0x00}))
		})
	})

	Describe("writes to address 0 of a page", func() {
		It("are tracked independently of the rest of the page", func() {
			im2 := memory.NewImage()
			im2.AddSegment(0x0, make([]byte, 8))
			s2 := memory.NewStore(im2)

			s2.Write(1, 0x0, []byte{0x7F})

			b, err := s2.ReadByte(0x0, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0x7F)))

			b, err = s2.ReadByte(0x1, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(byte(0x00)))
		})
	})
})
