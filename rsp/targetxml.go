package rsp

import (
	"encoding/xml"
	"fmt"
)

// targetDescription mirrors the subset of the GDB target description
// DTD this server needs to emit: a flat register list, no includes.
type targetDescription struct {
	XMLName     xml.Name       `xml:"target"`
	Version     string         `xml:"version,attr"`
	Arch        string         `xml:"architecture"`
	FeatureList []targetFeature `xml:"feature"`
}

type targetFeature struct {
	Name string            `xml:"name,attr"`
	Regs []targetRegister  `xml:"reg"`
}

type targetRegister struct {
	Name    string `xml:"name,attr"`
	Bitsize int    `xml:"bitsize,attr"`
	Type    string `xml:"type,attr,omitempty"`
	Regnum  int    `xml:"regnum,attr"`
}

const xmlHeader = `<?xml version="1.0"?>` + "\n" +
	`<!DOCTYPE target SYSTEM "gdb-target.xml">` + "\n"

// TargetXML returns the target.xml contents describing the 32 GPRs and
// PC for riscv:rv32. Capability metadata is never advertised here, in
// either dialect: 'g'/'p' only ever serve the plain 32-bit GPR values
// (see readAllRegisters/readRegister in server.go), and a description
// that promised more registers than those handlers return would break
// gdb's register cache on connect. Presenting capability values to the
// debugger is an explicit non-goal; the data itself is still retained
// verbatim by the regfile package for whatever later consumes it.
func TargetXML() string {
	regs := make([]targetRegister, 0, 33)
	for i := 0; i < 32; i++ {
		regs = append(regs, targetRegister{
			Name: fmt.Sprintf("x%d", i), Bitsize: 32, Type: "int", Regnum: i,
		})
	}
	regs = append(regs, targetRegister{Name: "pc", Bitsize: 32, Type: "code_ptr", Regnum: 32})

	desc := targetDescription{
		Version: "1.0",
		Arch:    "riscv:rv32",
		FeatureList: []targetFeature{
			{Name: "org.gnu.gdb.riscv.cpu", Regs: regs},
		},
	}

	body, err := xml.MarshalIndent(desc, "", "  ")
	if err != nil {
		// desc is a static, always-marshalable structure.
		panic(err)
	}

	return xmlHeader + string(body)
}
