// Package npy writes and reads NumPy .npy v1.0 arrays (little-endian, C order).
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	magic     = "\x93NUMPY"
	alignment = 64

	DescrFloat32 = "<f4"
	DescrInt32   = "<i4"
)

var ErrFormat = errors.New("npy: invalid format")

// Header describes an array.
type Header struct {
	Descr string
	Shape []int
}

// Len is the element count implied by Shape.
func (h Header) Len() int {
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

func (h Header) encode() []byte {
	dims := make([]string, len(h.Shape))
	for i, d := range h.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(h.Shape) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", h.Descr, shape)

	// magic(6) + version(2) + header_len(2) + dict + padding + '\n'
	total := 10 + len(dict) + 1
	pad := (alignment - total%alignment) % alignment
	var b bytes.Buffer
	b.WriteString(magic)
	b.Write([]byte{1, 0})
	_ = binary.Write(&b, binary.LittleEndian, uint16(len(dict)+pad+1))
	b.WriteString(dict)
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteByte('\n')
	return b.Bytes()
}

// WriteFloat32 writes data (len must equal the product of shape) as '<f4'.
func WriteFloat32(w io.Writer, shape []int, data []float32) error {
	h := Header{Descr: DescrFloat32, Shape: shape}
	if h.Len() != len(data) {
		return fmt.Errorf("npy: shape %v needs %d values, got %d", shape, h.Len(), len(data))
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.encode()); err != nil {
		return err
	}
	var buf [4]byte
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteInt32 writes data as '<i4'.
func WriteInt32(w io.Writer, shape []int, data []int32) error {
	h := Header{Descr: DescrInt32, Shape: shape}
	if h.Len() != len(data) {
		return fmt.Errorf("npy: shape %v needs %d values, got %d", shape, h.Len(), len(data))
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.encode()); err != nil {
		return err
	}
	var buf [4]byte
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var (
	descrRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	shapeRe = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
	orderRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
)

// ReadHeader consumes and parses the header of a v1.0 file.
func ReadHeader(r io.Reader) (Header, error) {
	var pre [10]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Header{}, fmt.Errorf("npy header: %w", err)
	}
	if string(pre[:6]) != magic || pre[6] != 1 {
		return Header{}, fmt.Errorf("%w: bad magic or version", ErrFormat)
	}
	dict := make([]byte, binary.LittleEndian.Uint16(pre[8:]))
	if _, err := io.ReadFull(r, dict); err != nil {
		return Header{}, fmt.Errorf("npy header: %w", err)
	}

	var h Header
	m := descrRe.FindSubmatch(dict)
	if m == nil {
		return Header{}, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	h.Descr = string(m[1])
	if o := orderRe.FindSubmatch(dict); o == nil || string(o[1]) != "False" {
		return Header{}, fmt.Errorf("%w: fortran order unsupported", ErrFormat)
	}
	m = shapeRe.FindSubmatch(dict)
	if m == nil {
		return Header{}, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	for _, part := range strings.Split(string(m[1]), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return Header{}, fmt.Errorf("%w: shape %q", ErrFormat, m[1])
		}
		h.Shape = append(h.Shape, d)
	}
	return h, nil
}

// ReadFloat32 reads a '<f4' array.
func ReadFloat32(r io.Reader) (Header, []float32, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Descr != DescrFloat32 {
		return Header{}, nil, fmt.Errorf("%w: descr %s, want %s", ErrFormat, h.Descr, DescrFloat32)
	}
	out := make([]float32, h.Len())
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, out); err != nil {
		return Header{}, nil, fmt.Errorf("npy data: %w", err)
	}
	return h, out, nil
}

// ReadInt32 reads a '<i4' array.
func ReadInt32(r io.Reader) (Header, []int32, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Descr != DescrInt32 {
		return Header{}, nil, fmt.Errorf("%w: descr %s, want %s", ErrFormat, h.Descr, DescrInt32)
	}
	out := make([]int32, h.Len())
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, out); err != nil {
		return Header{}, nil, fmt.Errorf("npy data: %w", err)
	}
	return h, out, nil
}
