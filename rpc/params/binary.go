// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package params

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/juju/errors"

	"github.com/d-pohl/Mediator.Net/core/module"
	"github.com/d-pohl/Mediator.Net/core/object"
	"github.com/d-pohl/Mediator.Net/core/vtq"
)

// The binary codec serves the hot-path frames (variable reads and writes)
// when a client asks for application/octet-stream. The layout is fixed and
// deterministic: little-endian 8-byte integers for timestamps, uvarint
// length prefixes for strings and lists, one byte per quality grade. Equal
// inputs always produce equal bytes.

// VTQList is a VTQ slice with a binary form; JSON renders it as a plain
// array.
type VTQList []vtq.VTQ

// VariableValueList is a VariableValue slice with a binary form.
type VariableValueList []object.VariableValue

type binWriter struct {
	buf bytes.Buffer
	tmp [binary.MaxVarintLen64]byte
}

func (w *binWriter) putUvarint(v uint64) {
	n := binary.PutUvarint(w.tmp[:], v)
	w.buf.Write(w.tmp[:n])
}

func (w *binWriter) putString(s string) {
	w.putUvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *binWriter) putInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *binWriter) putByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *binWriter) putRef(r object.VariableRef) {
	w.putString(r.Object.Module)
	w.putString(r.Object.ID)
	w.putString(r.Name)
}

func (w *binWriter) putVTQ(x vtq.VTQ) {
	w.putString(string(x.V))
	w.putInt64(int64(x.T))
	w.putByte(byte(x.Q))
}

type binReader struct {
	r   *bytes.Reader
	err error
}

func newBinReader(data []byte) *binReader {
	return &binReader{r: bytes.NewReader(data)}
}

func (r *binReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *binReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

func (r *binReader) string() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if n > uint64(r.r.Len()) {
		r.fail(io.ErrUnexpectedEOF)
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.fail(err)
		return ""
	}
	return string(b)
}

func (r *binReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.fail(err)
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func (r *binReader) byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
		return 0
	}
	return b
}

func (r *binReader) ref() object.VariableRef {
	mod := r.string()
	id := r.string()
	name := r.string()
	return object.VariableRef{Object: object.ObjectRef{Module: mod, ID: id}, Name: name}
}

func (r *binReader) vtq() vtq.VTQ {
	v := r.string()
	t := r.int64()
	q := r.byte()
	return vtq.VTQ{V: vtq.Value(v), T: vtq.Timestamp(t), Q: vtq.Quality(q)}
}

// listLen validates a decoded element count against the bytes that remain,
// using the smallest possible element size, so corrupt counts fail instead
// of allocating.
func (r *binReader) listLen(minElemSize int) int {
	n := r.uvarint()
	if r.err != nil {
		return 0
	}
	if minElemSize > 0 && n > uint64(r.r.Len()/minElemSize)+1 {
		r.fail(errors.NotValidf("list length %d", n))
		return 0
	}
	return int(n)
}

func (r *binReader) done() error {
	if r.err != nil {
		return errors.Annotate(r.err, "decoding binary frame")
	}
	if r.r.Len() != 0 {
		return errors.NotValidf("%d trailing bytes", r.r.Len())
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (req ReadVariablesRequest) MarshalBinary() ([]byte, error) {
	var w binWriter
	w.putString(req.Session)
	w.putInt64(req.TimeoutMS)
	w.putUvarint(uint64(len(req.Variables)))
	for _, ref := range req.Variables {
		w.putRef(ref)
	}
	return w.buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (req *ReadVariablesRequest) UnmarshalBinary(data []byte) error {
	r := newBinReader(data)
	req.Session = r.string()
	req.TimeoutMS = r.int64()
	n := r.listLen(3)
	if r.err == nil && n > 0 {
		req.Variables = make([]object.VariableRef, 0, n)
		for i := 0; i < n; i++ {
			req.Variables = append(req.Variables, r.ref())
		}
	}
	return r.done()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (req WriteVariablesRequest) MarshalBinary() ([]byte, error) {
	var w binWriter
	w.putString(req.Session)
	w.putInt64(req.TimeoutMS)
	w.putUvarint(uint64(len(req.Values)))
	for _, v := range req.Values {
		w.putRef(v.Variable)
		w.putVTQ(v.Value)
	}
	return w.buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (req *WriteVariablesRequest) UnmarshalBinary(data []byte) error {
	r := newBinReader(data)
	req.Session = r.string()
	req.TimeoutMS = r.int64()
	n := r.listLen(13)
	if r.err == nil && n > 0 {
		req.Values = make([]object.VariableValue, 0, n)
		for i := 0; i < n; i++ {
			ref := r.ref()
			val := r.vtq()
			req.Values = append(req.Values, object.VariableValue{Variable: ref, Value: val})
		}
	}
	return r.done()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (l VTQList) MarshalBinary() ([]byte, error) {
	var w binWriter
	w.putUvarint(uint64(len(l)))
	for _, x := range l {
		w.putVTQ(x)
	}
	return w.buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (l *VTQList) UnmarshalBinary(data []byte) error {
	r := newBinReader(data)
	n := r.listLen(10)
	out := VTQList{}
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.vtq())
	}
	if err := r.done(); err != nil {
		return err
	}
	*l = out
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (l VariableValueList) MarshalBinary() ([]byte, error) {
	var w binWriter
	w.putUvarint(uint64(len(l)))
	for _, v := range l {
		w.putRef(v.Variable)
		w.putVTQ(v.Value)
	}
	return w.buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (l *VariableValueList) UnmarshalBinary(data []byte) error {
	r := newBinReader(data)
	n := r.listLen(13)
	out := VariableValueList{}
	for i := 0; i < n && r.err == nil; i++ {
		ref := r.ref()
		val := r.vtq()
		out = append(out, object.VariableValue{Variable: ref, Value: val})
	}
	if err := r.done(); err != nil {
		return err
	}
	*l = out
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (resp WriteVariablesResponse) MarshalBinary() ([]byte, error) {
	var w binWriter
	w.putUvarint(uint64(len(resp.Failed)))
	for _, f := range resp.Failed {
		w.putRef(f.Variable)
		w.putString(f.Error)
	}
	return w.buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (resp *WriteVariablesResponse) UnmarshalBinary(data []byte) error {
	r := newBinReader(data)
	n := r.listLen(4)
	var out []module.WriteResult
	for i := 0; i < n && r.err == nil; i++ {
		ref := r.ref()
		msg := r.string()
		out = append(out, module.WriteResult{Variable: ref, Error: msg})
	}
	if err := r.done(); err != nil {
		return err
	}
	resp.Failed = out
	return nil
}
