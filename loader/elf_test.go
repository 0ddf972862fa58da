package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ibexdbg/rvreplay/loader"
)

const emRISCV = 243

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RISC-V ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalRISCVELF(elfPath, 0x100000, 0x100000, []byte{
					0x13, 0x05, 0xa0, 0x02, // addi x10, x0, 42
				}, 0)
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x100000)))
			})

			It("should load segments into memory", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(prog.Segments)).To(BeNumerically(">", 0))
			})

			It("should not be flagged as a CHERI image", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.CHERI).To(BeFalse())
			})
		})

		Context("with a CHERIoT ABI flag set", func() {
			It("should be flagged as a CHERI image", func() {
				elfPath := filepath.Join(tempDir, "cheri.elf")
				createMinimalRISCVELF(elfPath, 0x100000, 0x100000, []byte{0x13, 0x00, 0x00, 0x00}, 0x1000)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.CHERI).To(BeTrue())
			})
		})

		Context("with segment data", func() {
			It("should correctly load segment contents", func() {
				elfPath := filepath.Join(tempDir, "code.elf")
				codeData := []byte{0x13, 0x05, 0xa0, 0x02}
				createMinimalRISCVELF(elfPath, 0x100000, 0x100000, codeData, 0)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				var foundSegment *loader.Segment
				for i := range prog.Segments {
					if prog.Segments[i].VirtAddr == 0x100000 {
						foundSegment = &prog.Segments[i]
						break
					}
				}
				Expect(foundSegment).NotTo(BeNil())
				Expect(foundSegment.Data).To(HaveLen(len(codeData)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.elf")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should return error for x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createMinimalx86ELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})

		Context("with a 64-bit ELF", func() {
			It("should return error for 64-bit ELF", func() {
				elfPath := filepath.Join(tempDir, "elf64.elf")
				createMinimal64BitRISCVELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 32-bit"))
			})
		})
	})

	Describe("Multi-segment ELFs", func() {
		It("should load multiple PT_LOAD segments", func() {
			elfPath := filepath.Join(tempDir, "multi-segment.elf")
			codeData := []byte{0x13, 0x05, 0xa0, 0x02}
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			createMultiSegmentRISCVELF(elfPath, 0x100000, 0x100000, codeData, 0x200000, dataData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))

			var codeSeg, dataSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x100000 {
					codeSeg = &prog.Segments[i]
				}
				if prog.Segments[i].VirtAddr == 0x200000 {
					dataSeg = &prog.Segments[i]
				}
			}

			Expect(codeSeg).NotTo(BeNil())
			Expect(codeSeg.Data).To(Equal(codeData))
			Expect(codeSeg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())

			Expect(dataSeg).NotTo(BeNil())
			Expect(dataSeg.Data).To(Equal(dataData))
			Expect(dataSeg.Flags & loader.SegmentFlagWrite).NotTo(BeZero())
		})
	})

	Describe("BSS segments", func() {
		It("should handle BSS segments where Memsz > Filesz", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			initialData := []byte{0x01, 0x02, 0x03, 0x04}
			memSize := uint64(1024)
			createBSSSegmentRISCVELF(elfPath, 0x200000, 0x100000, initialData, memSize)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			var bssSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x200000 {
					bssSeg = &prog.Segments[i]
					break
				}
			}

			Expect(bssSeg).NotTo(BeNil())
			Expect(bssSeg.Data).To(Equal(initialData))
			Expect(bssSeg.MemSize).To(Equal(memSize))
			Expect(bssSeg.MemSize).To(BeNumerically(">", uint64(len(bssSeg.Data))))
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should return empty segments list for ELF with no PT_LOAD", func() {
			elfPath := filepath.Join(tempDir, "no-load.elf")
			createNoLoadableSegmentsRISCVELF(elfPath, 0x100000)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint64(0x100000)))
		})
	})
})

func elf32Header(machine uint16, class byte, entryPoint uint32, phnum uint16, flags uint32) []byte {
	h := make([]byte, 52)
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = class
	h[5] = 1 // little endian
	h[6] = 1 // version
	binary.LittleEndian.PutUint16(h[16:18], 2)       // ET_EXEC
	binary.LittleEndian.PutUint16(h[18:20], machine) //nolint:gosec
	binary.LittleEndian.PutUint32(h[20:24], 1)       // version
	binary.LittleEndian.PutUint32(h[24:28], entryPoint)
	binary.LittleEndian.PutUint32(h[28:32], 52) // phoff
	binary.LittleEndian.PutUint32(h[36:40], flags)
	binary.LittleEndian.PutUint16(h[40:42], 52) // ehsize
	binary.LittleEndian.PutUint16(h[42:44], 32) // phentsize
	binary.LittleEndian.PutUint16(h[44:46], phnum)
	return h
}

func progHeader32(typ, flags, offset, vaddr, filesz, memsz, align uint32) []byte {
	p := make([]byte, 32)
	binary.LittleEndian.PutUint32(p[0:4], typ)
	binary.LittleEndian.PutUint32(p[4:8], offset)
	binary.LittleEndian.PutUint32(p[8:12], vaddr)
	binary.LittleEndian.PutUint32(p[12:16], vaddr)
	binary.LittleEndian.PutUint32(p[16:20], filesz)
	binary.LittleEndian.PutUint32(p[20:24], memsz)
	binary.LittleEndian.PutUint32(p[24:28], flags)
	binary.LittleEndian.PutUint32(p[28:32], align)
	return p
}

func createMinimalRISCVELF(path string, loadAddr, entryPoint uint32, code []byte, eflags uint32) {
	header := elf32Header(emRISCV, 1, entryPoint, 1, eflags)
	ph := progHeader32(1, 0x5, 52+32, loadAddr, uint32(len(code)), uint32(len(code)), 0x1000)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(ph)
	_, _ = file.Write(code)
}

func createMinimalx86ELF(path string) {
	header := elf32Header(62, 1, 0, 0, 0)
	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

func createMinimal64BitRISCVELF(path string) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], emRISCV)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[56:58], 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

func createMultiSegmentRISCVELF(path string, codeAddr, entryPoint uint32, code []byte, dataAddr uint32, data []byte) {
	header := elf32Header(emRISCV, 1, entryPoint, 2, 0)
	ph1 := progHeader32(1, 0x5, 52+32*2, codeAddr, uint32(len(code)), uint32(len(code)), 0x1000)
	ph2 := progHeader32(1, 0x6, 52+32*2+uint32(len(code)), dataAddr, uint32(len(data)), uint32(len(data)), 0x1000)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(ph1)
	_, _ = file.Write(ph2)
	_, _ = file.Write(code)
	_, _ = file.Write(data)
}

func createBSSSegmentRISCVELF(path string, segAddr, entryPoint uint32, data []byte, memSize uint64) {
	header := elf32Header(emRISCV, 1, entryPoint, 1, 0)
	ph := progHeader32(1, 0x6, 52+32, segAddr, uint32(len(data)), uint32(memSize), 0x1000)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(ph)
	_, _ = file.Write(data)
}

func createNoLoadableSegmentsRISCVELF(path string, entryPoint uint32) {
	header := elf32Header(emRISCV, 1, entryPoint, 1, 0)
	ph := progHeader32(4 /* PT_NOTE */, 0x4, 52+32, 0, 0, 0, 4)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(ph)
}
