// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package wasmgen hand-assembles minimal valid WebAssembly 1.0 modules
// for use as built-in agents and in tests, since no wasm compiler is
// available in this environment. Every generated module imports its
// linear memory from "env"."memory" (the host supplies and bounds it)
// and re-exports that same memory under the name "memory" so the
// module still satisfies the "has a linear-memory export" check, even
// though the object behind it is host-owned. Each requested export name
// gets a no-op body (just an immediate `end`) unless overridden with a
// custom body such as LoopBody.
package wasmgen

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionExport   = 7
	sectionCode     = 10

	exportKindFunc   = 0x00
	exportKindMemory = 0x02

	importKindMemory = 0x02
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Module builds a module that imports its linear memory from "env" (the
// host supplies and owns it, per the host-allocated-memory design) and
// re-exports it as "memory" so validate_bytes still finds a memory
// export, plus a no-op function under each of exportFuncs.
func Module(exportFuncs []string) []byte {
	return ModuleWithBodies(exportFuncs, nil)
}

// ModuleWithBodies is Module, but lets the caller override the body of
// specific exports by name -- e.g. LoopBody for an export that must
// never return on its own, to exercise call-timeout preemption under a
// genuinely running guest instead of an already-expired context. Export
// names absent from bodies keep the default no-op body.
func ModuleWithBodies(exportFuncs []string, bodies map[string][]byte) []byte {
	var out []byte
	out = append(out, magic...)

	out = append(out, section(sectionType, typeSection())...)
	out = append(out, section(sectionImport, importSection(1, 160))...)
	out = append(out, section(sectionFunction, functionSection(len(exportFuncs)))...)
	out = append(out, section(sectionExport, exportSection(exportFuncs))...)
	out = append(out, section(sectionCode, codeSection(exportFuncs, bodies))...)

	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint32(len(body)))...)
	out = append(out, body...)
	return out
}

// typeSection declares a single func type: () -> ().
func typeSection() []byte {
	return []byte{0x01, 0x60, 0x00, 0x00}
}

// functionSection declares n functions, all of type index 0.
func functionSection(n int) []byte {
	out := uleb128(uint32(n))
	for i := 0; i < n; i++ {
		out = append(out, 0x00)
	}
	return out
}

// importSection imports a single memory, "env"."memory", with the given
// min/max page limits.
func importSection(minPages, maxPages uint32) []byte {
	out := uleb128(1) // one import
	out = append(out, uleb128(uint32(len("env")))...)
	out = append(out, []byte("env")...)
	out = append(out, uleb128(uint32(len("memory")))...)
	out = append(out, []byte("memory")...)
	out = append(out, importKindMemory)
	out = append(out, 0x01) // limits flag: has max
	out = append(out, uleb128(minPages)...)
	out = append(out, uleb128(maxPages)...)
	return out
}

// exportSection exports "memory" at index 0 plus one function export
// per name in fns, indices assigned in declaration order.
func exportSection(fns []string) []byte {
	out := uleb128(uint32(len(fns) + 1))
	out = append(out, exportEntry("memory", exportKindMemory, 0)...)
	for i, name := range fns {
		out = append(out, exportEntry(name, exportKindFunc, uint32(i))...)
	}
	return out
}

func exportEntry(name string, kind byte, idx uint32) []byte {
	out := uleb128(uint32(len(name)))
	out = append(out, []byte(name)...)
	out = append(out, kind)
	out = append(out, uleb128(idx)...)
	return out
}

// defaultBody is the minimal valid body for a () -> () function: zero
// locals, then a bare `end`. It returns immediately.
var defaultBody = []byte{0x00, 0x0b}

// LoopBody is a () -> () function body that branches back to the top
// of its own loop forever and so never reaches its `end` on its own --
// the only way it stops is external interruption of the runtime (wazero's
// WithCloseOnContextDone firing when the call's context expires). Use it
// for an export that must model a guest stuck mid-execution, as opposed
// to wiring a context that is already expired before the call is sent.
func LoopBody() []byte {
	return []byte{
		0x00,       // local decl count = 0
		0x03, 0x40, // loop (blocktype: empty)
		0x0c, 0x00, // br 0 -- back-edge to the loop's own start
		0x0b, // end (loop)
		0x0b, // end (func)
	}
}

// codeSection emits one function body per name in names, using bodies[name]
// when present and defaultBody otherwise.
func codeSection(names []string, bodies map[string][]byte) []byte {
	out := uleb128(uint32(len(names)))
	for _, name := range names {
		body := defaultBody
		if b, ok := bodies[name]; ok {
			body = b
		}
		out = append(out, uleb128(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
