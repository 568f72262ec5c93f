// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package encoder reads and writes compiled artifacts, the binary form of a
// compiled module with the key of its source.
package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/minipyc/minipyc"
)

// Constant tags.
const (
	tagNone byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagCodeUnit
)

// maxDepth limits nesting of code units.
const maxDepth = 256

// Write encodes unit and key into a new artifact.
func Write(unit *minipyc.CodeUnit, key InvalidationKey) ([]byte, error) {
	a := Artifact{Version: FormatVersion, Key: key, Main: unit}
	return a.MarshalBinary()
}

// Read decodes and validates an artifact.
func Read(data []byte) (*Artifact, error) {
	var a Artifact
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &a, nil
}

// ReadKey decodes only the header of an artifact.
func ReadKey(data []byte) (InvalidationKey, error) {
	key, _, err := decodeHeader(data)
	return key, err
}

// EncodeArtifactTo encodes unit and key to w io.Writer.
func EncodeArtifactTo(w io.Writer, unit *minipyc.CodeUnit, key InvalidationKey) error {
	data, err := Write(unit, key)
	if err != nil {
		return err
	}

	n, err := w.Write(data)
	if err != nil {
		return err
	}

	if n != len(data) {
		return errors.New("short write")
	}
	return nil
}

// DecodeArtifactFrom decodes an artifact from given r io.Reader.
func DecodeArtifactFrom(r io.Reader) (*Artifact, error) {
	dst := bytes.NewBuffer(nil)
	if _, err := io.Copy(dst, r); err != nil {
		return nil, err
	}
	return Read(dst.Bytes())
}

type encodeState struct {
	buf     *bytes.Buffer
	scratch [8]byte
}

func (e *encodeState) u32(v int) error {
	if v < 0 || int64(v) > math.MaxUint32 {
		return fmt.Errorf("value %d does not fit in uint32", v)
	}
	binary.BigEndian.PutUint32(e.scratch[:4], uint32(v))
	e.buf.Write(e.scratch[:4])
	return nil
}

func (e *encodeState) u64(v uint64) {
	binary.BigEndian.PutUint64(e.scratch[:], v)
	e.buf.Write(e.scratch[:])
}

func (e *encodeState) str(s string) error {
	if err := e.u32(len(s)); err != nil {
		return err
	}
	e.buf.WriteString(s)
	return nil
}

func (e *encodeState) strs(list []string) error {
	if err := e.u32(len(list)); err != nil {
		return err
	}
	for _, s := range list {
		if err := e.str(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *encodeState) codeUnit(u *minipyc.CodeUnit, depth int) error {
	if depth > maxDepth {
		return errors.New("code units nested too deeply")
	}
	if err := e.str(u.Name); err != nil {
		return err
	}
	if err := e.str(u.Filename); err != nil {
		return err
	}
	if err := e.u32(u.FirstLine); err != nil {
		return fmt.Errorf("%s: first line: %w", u.Name, err)
	}
	if err := e.u32(u.ArgCount); err != nil {
		return fmt.Errorf("%s: argument count: %w", u.Name, err)
	}
	if err := e.u32(int(u.Flags)); err != nil {
		return err
	}

	if err := e.u32(len(u.Instructions)); err != nil {
		return err
	}
	e.buf.Write(u.Instructions)

	if err := e.u32(len(u.Constants)); err != nil {
		return err
	}
	for i, c := range u.Constants {
		if err := e.constant(c, depth); err != nil {
			return fmt.Errorf("%s: constant #%d: %w", u.Name, i, err)
		}
	}

	if err := e.strs(u.Names); err != nil {
		return err
	}
	if err := e.strs(u.Locals); err != nil {
		return err
	}

	sm := u.SortedSourceMap()
	if err := e.u32(len(sm)); err != nil {
		return err
	}
	for _, entry := range sm {
		if err := e.u32(entry[0]); err != nil {
			return err
		}
		if err := e.u32(entry[1]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encodeState) constant(o minipyc.Object, depth int) error {
	switch v := o.(type) {
	case *minipyc.NoneType:
		e.buf.WriteByte(tagNone)
	case minipyc.Bool:
		e.buf.WriteByte(tagBool)
		if v {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
	case minipyc.Int:
		e.buf.WriteByte(tagInt)
		e.u64(uint64(v))
	case minipyc.Float:
		e.buf.WriteByte(tagFloat)
		e.u64(math.Float64bits(float64(v)))
	case minipyc.String:
		e.buf.WriteByte(tagString)
		return e.str(string(v))
	case *minipyc.CodeUnit:
		e.buf.WriteByte(tagCodeUnit)
		return e.codeUnit(v, depth+1)
	default:
		return fmt.Errorf("type '%s' cannot be encoded", o.TypeName())
	}
	return nil
}

type decodeState struct {
	data []byte
	off  int
}

func (d *decodeState) errorf(format string, args ...interface{}) error {
	return &FormatError{Offset: d.off, Msg: fmt.Sprintf(format, args...)}
}

func (d *decodeState) need(n int, what string) error {
	if n < 0 || len(d.data)-d.off < n {
		return d.errorf("unexpected end of data reading %s", what)
	}
	return nil
}

func (d *decodeState) readByte(what string) (byte, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *decodeState) u32(what string) (int, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.off:])
	d.off += 4
	return int(v), nil
}

func (d *decodeState) u64(what string) (uint64, error) {
	if err := d.need(8, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v, nil
}

// count reads a table length, each entry takes at least minSize bytes.
func (d *decodeState) count(what string, minSize int) (int, error) {
	start := d.off
	n, err := d.u32(what)
	if err != nil {
		return 0, err
	}
	if n > (len(d.data)-d.off)/minSize {
		d.off = start
		return 0, d.errorf("%s count %d exceeds data", what, n)
	}
	return n, nil
}

func (d *decodeState) str(what string) (string, error) {
	n, err := d.u32(what)
	if err != nil {
		return "", err
	}
	if err = d.need(n, what); err != nil {
		return "", err
	}
	b := d.data[d.off : d.off+n]
	if !utf8.Valid(b) {
		return "", d.errorf("invalid UTF-8 in %s", what)
	}
	d.off += n
	return string(b), nil
}

func (d *decodeState) strs(what string) ([]string, error) {
	n, err := d.count(what, 4)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.str(what); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decodeState) codeUnit(depth int) (*minipyc.CodeUnit, error) {
	if depth > maxDepth {
		return nil, d.errorf("code units nested too deeply")
	}

	var (
		u   minipyc.CodeUnit
		err error
		v   int
	)
	if u.Name, err = d.str("name"); err != nil {
		return nil, err
	}
	if u.Filename, err = d.str("filename"); err != nil {
		return nil, err
	}
	if u.FirstLine, err = d.u32("first line"); err != nil {
		return nil, err
	}
	if u.ArgCount, err = d.u32("argument count"); err != nil {
		return nil, err
	}
	if v, err = d.u32("flags"); err != nil {
		return nil, err
	}
	u.Flags = uint32(v)

	if v, err = d.u32("instructions"); err != nil {
		return nil, err
	}
	if err = d.need(v, "instructions"); err != nil {
		return nil, err
	}
	insStart := d.off
	u.Instructions = append([]byte(nil), d.data[d.off:d.off+v]...)
	d.off += v

	if v, err = d.count("constants", 1); err != nil {
		return nil, err
	}
	u.Constants = make([]minipyc.Object, v)
	for i := range u.Constants {
		if u.Constants[i], err = d.constant(depth); err != nil {
			return nil, err
		}
	}

	if u.Names, err = d.strs("names"); err != nil {
		return nil, err
	}
	if u.Locals, err = d.strs("locals"); err != nil {
		return nil, err
	}
	if u.ArgCount > len(u.Locals) {
		return nil, d.errorf("argument count %d exceeds %d locals",
			u.ArgCount, len(u.Locals))
	}

	if v, err = d.count("source map", 8); err != nil {
		return nil, err
	}
	u.SourceMap = make(map[int]int, v)
	last := -1
	for i := 0; i < v; i++ {
		start := d.off
		ip, err := d.u32("source map offset")
		if err != nil {
			return nil, err
		}
		line, err := d.u32("source map line")
		if err != nil {
			return nil, err
		}
		if ip <= last || ip >= len(u.Instructions) {
			d.off = start
			return nil, d.errorf("invalid source map offset %d", ip)
		}
		last = ip
		u.SourceMap[ip] = line
	}

	if err := validateInstructions(&u); err != nil {
		return nil, &FormatError{Offset: insStart + err.pos, Msg: err.msg}
	}
	return &u, nil
}

func (d *decodeState) constant(depth int) (minipyc.Object, error) {
	tag, err := d.readByte("constant tag")
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNone:
		return minipyc.None, nil
	case tagBool:
		b, err := d.readByte("bool")
		if err != nil {
			return nil, err
		}
		if b > 1 {
			d.off--
			return nil, d.errorf("invalid bool value %d", b)
		}
		return minipyc.Bool(b == 1), nil
	case tagInt:
		v, err := d.u64("int")
		if err != nil {
			return nil, err
		}
		return minipyc.Int(int64(v)), nil
	case tagFloat:
		v, err := d.u64("float")
		if err != nil {
			return nil, err
		}
		return minipyc.Float(math.Float64frombits(v)), nil
	case tagString:
		s, err := d.str("string")
		if err != nil {
			return nil, err
		}
		return minipyc.String(s), nil
	case tagCodeUnit:
		return d.codeUnit(depth + 1)
	}
	d.off--
	return nil, d.errorf("unknown constant tag %d", tag)
}

type instructionError struct {
	pos int
	msg string
}

// validateInstructions checks that every opcode is known, operands are
// complete and inside their tables and jumps land on an instruction of the
// unit.
func validateInstructions(u *minipyc.CodeUnit) *instructionError {
	ins := u.Instructions
	starts := make(map[int]struct{})
	type jump struct{ pos, target int }
	var jumps []jump
	operands := make([]int, 0, 2)

	for i := 0; i < len(ins); {
		op := ins[i]
		if int(op) >= len(minipyc.OpcodeOperands) {
			return &instructionError{i, fmt.Sprintf("unknown opcode %d", op)}
		}
		widths := minipyc.OpcodeOperands[op]
		var size int
		for _, w := range widths {
			size += w
		}
		if i+1+size > len(ins) {
			return &instructionError{i, fmt.Sprintf("incomplete %s instruction",
				minipyc.OpcodeNames[op])}
		}
		starts[i] = struct{}{}
		operands, _ = minipyc.ReadOperands(widths, ins[i+1:], operands)

		var limit int
		var table string
		switch op {
		case minipyc.OpConstant:
			limit, table = len(u.Constants), "constant"
		case minipyc.OpMakeFunction:
			if operands[0] < len(u.Constants) {
				if _, ok := u.Constants[operands[0]].(*minipyc.CodeUnit); !ok {
					return &instructionError{i, fmt.Sprintf(
						"MAKEFUNCTION constant %d is not a code unit", operands[0])}
				}
			}
			limit, table = len(u.Constants), "constant"
		case minipyc.OpGetGlobal, minipyc.OpSetGlobal:
			limit, table = len(u.Names), "name"
		case minipyc.OpGetLocal, minipyc.OpSetLocal:
			limit, table = len(u.Locals), "local"
		case minipyc.OpReturn:
			limit, table = 2, "return count"
		default:
			if minipyc.IsJump(op) {
				jumps = append(jumps, jump{i, operands[0]})
			}
		}
		if table != "" && operands[0] >= limit {
			return &instructionError{i, fmt.Sprintf("%s index %d out of range",
				table, operands[0])}
		}
		i += 1 + size
	}

	for _, j := range jumps {
		if _, ok := starts[j.target]; !ok {
			return &instructionError{j.pos, fmt.Sprintf(
				"jump target %d is not an instruction", j.target)}
		}
	}
	return nil
}
