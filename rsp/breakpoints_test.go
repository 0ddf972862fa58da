package rsp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ibexdbg/rvreplay/replay"
	"github.com/ibexdbg/rvreplay/rsp"
)

var _ = Describe("Table", func() {
	var table *rsp.Table

	BeforeEach(func() {
		table = rsp.NewTable()
	})

	It("starts with an empty stop set", func() {
		ss := table.StopSet()
		Expect(ss.Breakpoints).To(BeEmpty())
		Expect(ss.WriteWatch).To(BeEmpty())
	})

	It("inserts software and hardware breakpoints into the same list", func() {
		Expect(table.Insert(rsp.KindSoftwareBreakpoint, 0x1000, 0)).To(Succeed())
		Expect(table.Insert(rsp.KindHardwareBreakpoint, 0x2000, 0)).To(Succeed())

		ss := table.StopSet()
		Expect(ss.Breakpoints).To(ConsistOf(uint64(0x1000), uint64(0x2000)))
	})

	It("inserts write watchpoints", func() {
		Expect(table.Insert(rsp.KindWriteWatchpoint, 0x3000, 4)).To(Succeed())

		ss := table.StopSet()
		Expect(ss.WriteWatch).To(ConsistOf(replay.Watchpoint{Addr: 0x3000, Len: 4}))
	})

	It("refuses read and access watchpoints", func() {
		err := table.Insert(rsp.KindReadWatchpoint, 0x4000, 4)
		Expect(err).To(MatchError(rsp.ErrUnsupportedWatchpoint))

		err = table.Insert(rsp.KindAccessWatchpoint, 0x4000, 4)
		Expect(err).To(MatchError(rsp.ErrUnsupportedWatchpoint))
	})

	It("rejects an unknown kind", func() {
		Expect(table.Insert(99, 0x1000, 0)).To(HaveOccurred())
	})

	It("removes a previously inserted breakpoint", func() {
		Expect(table.Insert(rsp.KindSoftwareBreakpoint, 0x1000, 0)).To(Succeed())
		Expect(table.Remove(rsp.KindSoftwareBreakpoint, 0x1000, 0)).To(Succeed())

		Expect(table.StopSet().Breakpoints).To(BeEmpty())
	})

	It("removing a breakpoint that was never inserted is a no-op", func() {
		Expect(table.Remove(rsp.KindSoftwareBreakpoint, 0x9999, 0)).To(Succeed())
	})

	It("removes a write watchpoint matching both address and length", func() {
		Expect(table.Insert(rsp.KindWriteWatchpoint, 0x3000, 4)).To(Succeed())
		Expect(table.Remove(rsp.KindWriteWatchpoint, 0x3000, 4)).To(Succeed())

		Expect(table.StopSet().WriteWatch).To(BeEmpty())
	})
})
