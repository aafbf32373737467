package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"
)

// Writer assembles a GGUF v3 file in memory and flushes it with Save.
type Writer struct {
	metadata map[string]interface{}
	tensors  []pendingTensor
}

type pendingTensor struct {
	name  string
	shape []int
	dtype GGMLType
	data  []float32
}

// NewWriter creates an empty GGUF writer
func NewWriter() *Writer {
	return &Writer{metadata: make(map[string]interface{})}
}

// Set stores a metadata value. Supported types are string, bool, uint32,
// int32, float32, uint64, []string, []int32 and []float32.
func (w *Writer) Set(key string, value interface{}) {
	w.metadata[key] = value
}

// AddTensor queues a tensor. shape is outermost first; data is stored as dtype.
func (w *Writer) AddTensor(name string, shape []int, dtype GGMLType, data []float32) error {
	if dtype != GGML_TYPE_F32 && dtype != GGML_TYPE_F16 {
		return fmt.Errorf("cannot write tensor %s as %s", name, dtype)
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v holds %d values, got %d", name, shape, n, len(data))
	}
	w.tensors = append(w.tensors, pendingTensor{name: name, shape: shape, dtype: dtype, data: data})
	return nil
}

// Save writes the GGUF file to path, replacing any existing file.
func (w *Writer) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := w.write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (w *Writer) write(bw *bufio.Writer) error {
	cw := &countingWriter{w: bw}
	le := binary.LittleEndian

	keys := make([]string, 0, len(w.metadata))
	for k := range w.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	binary.Write(cw, le, uint32(ggufMagic))
	binary.Write(cw, le, uint32(3))
	binary.Write(cw, le, uint64(len(w.tensors)))
	binary.Write(cw, le, uint64(len(keys)))

	for _, k := range keys {
		writeString(cw, k)
		if err := writeValue(cw, w.metadata[k]); err != nil {
			return fmt.Errorf("metadata %s: %w", k, err)
		}
	}

	var offset uint64
	offsets := make([]uint64, len(w.tensors))
	for i, t := range w.tensors {
		writeString(cw, t.name)
		binary.Write(cw, le, uint32(len(t.shape)))
		for j := len(t.shape) - 1; j >= 0; j-- {
			binary.Write(cw, le, uint64(t.shape[j]))
		}
		binary.Write(cw, le, uint32(t.dtype))
		binary.Write(cw, le, offset)
		offsets[i] = offset

		size := uint64(len(t.data)) * 4
		if t.dtype == GGML_TYPE_F16 {
			size = uint64(len(t.data)) * 2
		}
		offset = uint64(alignUp(int64(offset+size), defaultAlignment))
	}

	cw.pad(defaultAlignment)
	base := cw.n

	for i, t := range w.tensors {
		for cw.n-base < int64(offsets[i]) {
			cw.Write([]byte{0})
		}
		buf := make([]byte, 4)
		for _, v := range t.data {
			if t.dtype == GGML_TYPE_F16 {
				le.PutUint16(buf, float16.Fromfloat32(v).Bits())
				cw.Write(buf[:2])
			} else {
				le.PutUint32(buf, math.Float32bits(v))
				cw.Write(buf)
			}
		}
	}

	return cw.err
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) pad(alignment int64) {
	for c.n%alignment != 0 {
		c.Write([]byte{0})
	}
}

func writeString(w *countingWriter, s string) {
	binary.Write(w, binary.LittleEndian, uint64(len(s)))
	w.Write([]byte(s))
}

func writeValue(w *countingWriter, v interface{}) error {
	le := binary.LittleEndian
	switch val := v.(type) {
	case string:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_STRING)
		writeString(w, val)
	case bool:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_BOOL)
		var b uint8
		if val {
			b = 1
		}
		binary.Write(w, le, b)
	case uint32:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_UINT32)
		binary.Write(w, le, val)
	case int32:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_INT32)
		binary.Write(w, le, val)
	case float32:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_FLOAT32)
		binary.Write(w, le, val)
	case uint64:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_UINT64)
		binary.Write(w, le, val)
	case []string:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_ARRAY)
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_STRING)
		binary.Write(w, le, uint64(len(val)))
		for _, s := range val {
			writeString(w, s)
		}
	case []int32:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_ARRAY)
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_INT32)
		binary.Write(w, le, uint64(len(val)))
		for _, x := range val {
			binary.Write(w, le, x)
		}
	case []float32:
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_ARRAY)
		binary.Write(w, le, GGUF_METADATA_VALUE_TYPE_FLOAT32)
		binary.Write(w, le, uint64(len(val)))
		for _, x := range val {
			binary.Write(w, le, x)
		}
	default:
		return fmt.Errorf("unsupported metadata type %T", v)
	}
	return nil
}
