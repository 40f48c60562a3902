/*
 * yams - MIPS32 R2 disassembler
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package-local disassembler, sibling to the decode tables in
// opcodes.go the way the teacher keeps emu/disassemble next to
// emu/core: one text mnemonic per 32-bit instruction word, used by the
// console's dump and regdump commands, never by execute.go itself.
package cpu

import "fmt"

var gprNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

func reg(r uint32) string { return "$" + gprNames[r&0x1f] }

// Disassemble renders one 32-bit instruction word fetched from pc as a
// single line of MIPS assembly text, best-effort: an encoding this
// package's decode tables don't recognize prints as a raw word.
func Disassemble(pc uint32, word uint32) string {
	op := word >> 26
	rs := (word >> 21) & 0x1f
	rt := (word >> 16) & 0x1f
	rd := (word >> 11) & 0x1f
	sh := (word >> 6) & 0x1f
	fn := word & 0x3f
	imm := int16(word & 0xffff)
	target := word & 0x03ffffff

	switch op {
	case opSpecial:
		return disasmSpecial(rs, rt, rd, sh, fn)
	case opSpecial2:
		return disasmSpecial2(rs, rt, rd, fn)
	case opRegimm:
		return disasmRegimm(rs, rt, imm)
	case opJ:
		return fmt.Sprintf("j       %#08x", jumpTarget(pc, target))
	case opJal:
		return fmt.Sprintf("jal     %#08x", jumpTarget(pc, target))
	case opBeq:
		return branch2("beq", rs, rt, imm)
	case opBne:
		return branch2("bne", rs, rt, imm)
	case opBlez:
		return branch1("blez", rs, imm)
	case opBgtz:
		return branch1("bgtz", rs, imm)
	case opBeql:
		return branch2("beql", rs, rt, imm)
	case opBnel:
		return branch2("bnel", rs, rt, imm)
	case opBlezl:
		return branch1("blezl", rs, imm)
	case opBgtzl:
		return branch1("bgtzl", rs, imm)
	case opAddi:
		return immOp("addi", rt, rs, imm)
	case opAddiu:
		return immOp("addiu", rt, rs, imm)
	case opSlti:
		return immOp("slti", rt, rs, imm)
	case opSltiu:
		return immOp("sltiu", rt, rs, imm)
	case opAndi:
		return immOpU("andi", rt, rs, uint16(imm))
	case opOri:
		return immOpU("ori", rt, rs, uint16(imm))
	case opXori:
		return immOpU("xori", rt, rs, uint16(imm))
	case opLui:
		return fmt.Sprintf("lui     %s, %#x", reg(rt), uint16(imm))
	case opCop0:
		return disasmCop0(rs, rt, rd, fn)
	case opLb:
		return memOp("lb", rt, imm, rs)
	case opLh:
		return memOp("lh", rt, imm, rs)
	case opLwl:
		return memOp("lwl", rt, imm, rs)
	case opLw:
		return memOp("lw", rt, imm, rs)
	case opLbu:
		return memOp("lbu", rt, imm, rs)
	case opLhu:
		return memOp("lhu", rt, imm, rs)
	case opLwr:
		return memOp("lwr", rt, imm, rs)
	case opSb:
		return memOp("sb", rt, imm, rs)
	case opSh:
		return memOp("sh", rt, imm, rs)
	case opSwl:
		return memOp("swl", rt, imm, rs)
	case opSw:
		return memOp("sw", rt, imm, rs)
	case opSwr:
		return memOp("swr", rt, imm, rs)
	case opLl:
		return memOp("ll", rt, imm, rs)
	case opSc:
		return memOp("sc", rt, imm, rs)
	case opCache:
		return fmt.Sprintf("cache   %#x, %d(%s)", rt, imm, reg(rs))
	case opPref:
		return fmt.Sprintf("pref    %#x, %d(%s)", rt, imm, reg(rs))
	default:
		return fmt.Sprintf(".word   %#08x", word)
	}
}

func jumpTarget(pc uint32, target uint32) uint32 {
	return (pc & 0xf0000000) | (target << 2)
}

func branch2(mn string, rs, rt uint32, imm int16) string {
	return fmt.Sprintf("%-7s %s, %s, %+d", mn, reg(rs), reg(rt), int32(imm)*4)
}

func branch1(mn string, rs uint32, imm int16) string {
	return fmt.Sprintf("%-7s %s, %+d", mn, reg(rs), int32(imm)*4)
}

func immOp(mn string, rt, rs uint32, imm int16) string {
	return fmt.Sprintf("%-7s %s, %s, %d", mn, reg(rt), reg(rs), imm)
}

func immOpU(mn string, rt, rs uint32, imm uint16) string {
	return fmt.Sprintf("%-7s %s, %s, %#x", mn, reg(rt), reg(rs), imm)
}

func memOp(mn string, rt uint32, imm int16, rs uint32) string {
	return fmt.Sprintf("%-7s %s, %d(%s)", mn, reg(rt), imm, reg(rs))
}

func disasmSpecial(rs, rt, rd, sh, fn uint32) string {
	switch fn {
	case fnSll:
		if rd == 0 && rt == 0 && sh == 0 {
			return "nop"
		}
		return fmt.Sprintf("sll     %s, %s, %d", reg(rd), reg(rt), sh)
	case fnSrl:
		return fmt.Sprintf("srl     %s, %s, %d", reg(rd), reg(rt), sh)
	case fnSra:
		return fmt.Sprintf("sra     %s, %s, %d", reg(rd), reg(rt), sh)
	case fnSllv:
		return fmt.Sprintf("sllv    %s, %s, %s", reg(rd), reg(rt), reg(rs))
	case fnSrlv:
		return fmt.Sprintf("srlv    %s, %s, %s", reg(rd), reg(rt), reg(rs))
	case fnSrav:
		return fmt.Sprintf("srav    %s, %s, %s", reg(rd), reg(rt), reg(rs))
	case fnJr:
		return fmt.Sprintf("jr      %s", reg(rs))
	case fnJalr:
		return fmt.Sprintf("jalr    %s, %s", reg(rd), reg(rs))
	case fnMovz:
		return fmt.Sprintf("movz    %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnMovn:
		return fmt.Sprintf("movn    %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnSyscall:
		return "syscall"
	case fnBreak:
		return "break"
	case fnSync:
		return "sync"
	case fnMfhi:
		return fmt.Sprintf("mfhi    %s", reg(rd))
	case fnMthi:
		return fmt.Sprintf("mthi    %s", reg(rs))
	case fnMflo:
		return fmt.Sprintf("mflo    %s", reg(rd))
	case fnMtlo:
		return fmt.Sprintf("mtlo    %s", reg(rs))
	case fnMult:
		return fmt.Sprintf("mult    %s, %s", reg(rs), reg(rt))
	case fnMultu:
		return fmt.Sprintf("multu   %s, %s", reg(rs), reg(rt))
	case fnDiv:
		return fmt.Sprintf("div     %s, %s", reg(rs), reg(rt))
	case fnDivu:
		return fmt.Sprintf("divu    %s, %s", reg(rs), reg(rt))
	case fnAdd:
		return fmt.Sprintf("add     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnAddu:
		return fmt.Sprintf("addu    %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnSub:
		return fmt.Sprintf("sub     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnSubu:
		return fmt.Sprintf("subu    %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnAnd:
		return fmt.Sprintf("and     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnOr:
		return fmt.Sprintf("or      %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnXor:
		return fmt.Sprintf("xor     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnNor:
		return fmt.Sprintf("nor     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnSlt:
		return fmt.Sprintf("slt     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnSltu:
		return fmt.Sprintf("sltu    %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fnTge:
		return fmt.Sprintf("tge     %s, %s", reg(rs), reg(rt))
	case fnTgeu:
		return fmt.Sprintf("tgeu    %s, %s", reg(rs), reg(rt))
	case fnTlt:
		return fmt.Sprintf("tlt     %s, %s", reg(rs), reg(rt))
	case fnTltu:
		return fmt.Sprintf("tltu    %s, %s", reg(rs), reg(rt))
	case fnTeq:
		return fmt.Sprintf("teq     %s, %s", reg(rs), reg(rt))
	case fnTne:
		return fmt.Sprintf("tne     %s, %s", reg(rs), reg(rt))
	default:
		return fmt.Sprintf(".special %#x", fn)
	}
}

func disasmSpecial2(rs, rt, rd, fn uint32) string {
	switch fn {
	case fn2Madd:
		return fmt.Sprintf("madd    %s, %s", reg(rs), reg(rt))
	case fn2Maddu:
		return fmt.Sprintf("maddu   %s, %s", reg(rs), reg(rt))
	case fn2Mul:
		return fmt.Sprintf("mul     %s, %s, %s", reg(rd), reg(rs), reg(rt))
	case fn2Msub:
		return fmt.Sprintf("msub    %s, %s", reg(rs), reg(rt))
	case fn2Msubu:
		return fmt.Sprintf("msubu   %s, %s", reg(rs), reg(rt))
	case fn2Clz:
		return fmt.Sprintf("clz     %s, %s", reg(rd), reg(rs))
	case fn2Clo:
		return fmt.Sprintf("clo     %s, %s", reg(rd), reg(rs))
	default:
		return fmt.Sprintf(".special2 %#x", fn)
	}
}

func disasmRegimm(rs uint32, rt uint32, imm int16) string {
	switch rt {
	case riBltz:
		return branch1("bltz", rs, imm)
	case riBgez:
		return branch1("bgez", rs, imm)
	case riBltzl:
		return branch1("bltzl", rs, imm)
	case riBgezl:
		return branch1("bgezl", rs, imm)
	case riBltzal:
		return branch1("bltzal", rs, imm)
	case riBgezal:
		return branch1("bgezal", rs, imm)
	case riBltzall:
		return branch1("bltzall", rs, imm)
	case riBgezall:
		return branch1("bgezall", rs, imm)
	case riTgei:
		return fmt.Sprintf("tgei    %s, %d", reg(rs), imm)
	case riTgeiu:
		return fmt.Sprintf("tgeiu   %s, %d", reg(rs), imm)
	case riTlti:
		return fmt.Sprintf("tlti    %s, %d", reg(rs), imm)
	case riTltiu:
		return fmt.Sprintf("tltiu   %s, %d", reg(rs), imm)
	case riTeqi:
		return fmt.Sprintf("teqi    %s, %d", reg(rs), imm)
	case riTnei:
		return fmt.Sprintf("tnei    %s, %d", reg(rs), imm)
	default:
		return fmt.Sprintf(".regimm %#x", rt)
	}
}

func disasmCop0(rs, rt, rd, fn uint32) string {
	switch rs {
	case cop0Mf:
		return fmt.Sprintf("mfc0    %s, $%d", reg(rt), rd)
	case cop0Mt:
		return fmt.Sprintf("mtc0    %s, $%d", reg(rt), rd)
	case cop0Co:
		switch fn {
		case co0Tlbr:
			return "tlbr"
		case co0Tlbwi:
			return "tlbwi"
		case co0Tlbwr:
			return "tlbwr"
		case co0Tlbp:
			return "tlbp"
		case co0Eret:
			return "eret"
		case co0Wait:
			return "wait"
		default:
			return fmt.Sprintf(".cop0 %#x", fn)
		}
	default:
		return fmt.Sprintf(".cop0 rs=%#x", rs)
	}
}
