/*
 * yams - MIPS32 R2 opcode tables
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

package cpu

// Primary opcode field, bits [31:26].
const (
	opSpecial  = 0x00
	opRegimm   = 0x01
	opJ        = 0x02
	opJal      = 0x03
	opBeq      = 0x04
	opBne      = 0x05
	opBlez     = 0x06
	opBgtz     = 0x07
	opAddi     = 0x08
	opAddiu    = 0x09
	opSlti     = 0x0A
	opSltiu    = 0x0B
	opAndi     = 0x0C
	opOri      = 0x0D
	opXori     = 0x0E
	opLui      = 0x0F
	opCop0     = 0x10
	opCop1     = 0x11
	opCop2     = 0x12
	opCop1x    = 0x13
	opBeql     = 0x14
	opBnel     = 0x15
	opBlezl    = 0x16
	opBgtzl    = 0x17
	opSpecial2 = 0x1C
	opLb       = 0x20
	opLh       = 0x21
	opLwl      = 0x22
	opLw       = 0x23
	opLbu      = 0x24
	opLhu      = 0x25
	opLwr      = 0x26
	opSb       = 0x28
	opSh       = 0x29
	opSwl      = 0x2A
	opSw       = 0x2B
	opSwr      = 0x2E
	opCache    = 0x2F
	opLl       = 0x30
	opLwc1     = 0x31
	opLwc2     = 0x32
	opPref     = 0x33
	opSc       = 0x38
	opSwc1     = 0x39
	opSwc2     = 0x3A
)

// SPECIAL function field, bits [5:0].
const (
	fnSll     = 0x00
	fnMovci   = 0x01
	fnSrl     = 0x02
	fnSra     = 0x03
	fnSllv    = 0x04
	fnSrlv    = 0x06
	fnSrav    = 0x07
	fnJr      = 0x08
	fnJalr    = 0x09
	fnMovz    = 0x0A
	fnMovn    = 0x0B
	fnSyscall = 0x0C
	fnBreak   = 0x0D
	fnSync    = 0x0F
	fnMfhi    = 0x10
	fnMthi    = 0x11
	fnMflo    = 0x12
	fnMtlo    = 0x13
	fnMult    = 0x18
	fnMultu   = 0x19
	fnDiv     = 0x1A
	fnDivu    = 0x1B
	fnAdd     = 0x20
	fnAddu    = 0x21
	fnSub     = 0x22
	fnSubu    = 0x23
	fnAnd     = 0x24
	fnOr      = 0x25
	fnXor     = 0x26
	fnNor     = 0x27
	fnSlt     = 0x2A
	fnSltu    = 0x2B
	fnTge     = 0x30
	fnTgeu    = 0x31
	fnTlt     = 0x32
	fnTltu    = 0x33
	fnTeq     = 0x34
	fnTne     = 0x36
)

// REGIMM rt field, bits [20:16].
const (
	riBltz    = 0x00
	riBgez    = 0x01
	riBltzl   = 0x02
	riBgezl   = 0x03
	riTgei    = 0x08
	riTgeiu   = 0x09
	riTlti    = 0x0A
	riTltiu   = 0x0B
	riTeqi    = 0x0C
	riTnei    = 0x0E
	riBltzal  = 0x10
	riBgezal  = 0x11
	riBltzall = 0x12
	riBgezall = 0x13
)

// SPECIAL2 function field. Implemented strictly by value, per
// SPEC_FULL.md §9's open question about the source's SPECIAL2 comment
// numbering -- never trust the comment, only the encoded value.
const (
	fn2Madd  = 0x00
	fn2Maddu = 0x01
	fn2Mul   = 0x02
	fn2Msub  = 0x04
	fn2Msubu = 0x05
	fn2Clz   = 0x20
	fn2Clo   = 0x21
)

// COP0 rs field, bits [25:21].
const (
	cop0Mf  = 0x00
	cop0Mt  = 0x04
	cop0Co  = 0x10 // CO bit set: funct field selects a TLB/privileged op
)

// COP0 CO-class function field.
const (
	co0Tlbr = 0x01
	co0Tlbwi = 0x02
	co0Tlbwr = 0x06
	co0Tlbp  = 0x08
	co0Eret  = 0x18
	co0Wait  = 0x20
)
