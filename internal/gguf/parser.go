package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// GGUF magic number: "GGUF" in little-endian
const ggufMagic = 0x46554747

// Sanity limits for corrupt headers
const (
	maxStringLen = 1 << 30
	maxArrayLen  = 1 << 28
	maxDims      = 16
)

// countingReader tracks how many bytes the header parse consumed so the
// tensor data offset can be computed without seeking.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ParseGGUF opens and parses a GGUF file header, metadata and tensor index
func ParseGGUF(path string) (*GGUFFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GGUF file: %w", err)
	}
	defer f.Close()

	g, err := parse(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	g.path = path
	return g, nil
}

func parse(src io.Reader) (*GGUFFile, error) {
	g := &GGUFFile{
		Metadata: make(map[string]interface{}),
		Tensors:  make(map[string]*TensorInfo),
	}
	r := &countingReader{r: src}

	if err := g.parseHeader(r); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if err := g.parseMetadata(r); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := g.parseTensorInfo(r); err != nil {
		return nil, fmt.Errorf("failed to parse tensor info: %w", err)
	}

	alignment := int64(defaultAlignment)
	if v, ok := g.GetMetadataInt(KeyAlignment); ok && v > 0 {
		alignment = int64(v)
	}
	g.tensorDataOffset = alignUp(r.n, alignment)

	return g, nil
}

// parseHeader reads magic, version and the tensor and metadata counts
func (g *GGUFFile) parseHeader(r io.Reader) error {
	var err error
	if g.magic, err = read[uint32](r); err != nil {
		return fmt.Errorf("failed to read magic: %w", err)
	}
	if g.magic != ggufMagic {
		return fmt.Errorf("invalid magic: expected 0x%x (GGUF), got 0x%x", ggufMagic, g.magic)
	}

	if g.version, err = read[uint32](r); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if g.version < 2 || g.version > 3 {
		return fmt.Errorf("unsupported GGUF version: %d (supported: 2-3)", g.version)
	}

	if g.tensorCount, err = read[uint64](r); err != nil {
		return fmt.Errorf("failed to read tensor count: %w", err)
	}
	if g.kvCount, err = read[uint64](r); err != nil {
		return fmt.Errorf("failed to read KV count: %w", err)
	}
	return nil
}

// parseMetadata reads all metadata key-value pairs
func (g *GGUFFile) parseMetadata(r io.Reader) error {
	for i := uint64(0); i < g.kvCount; i++ {
		key, err := readString(r)
		if err != nil {
			return fmt.Errorf("failed to read metadata key %d: %w", i, err)
		}

		vtype, err := read[ValueType](r)
		if err != nil {
			return fmt.Errorf("failed to read value type for key %s: %w", key, err)
		}

		value, err := readValue(r, vtype)
		if err != nil {
			return fmt.Errorf("failed to read metadata value for %s: %w", key, err)
		}
		g.Metadata[key] = value
	}
	return nil
}

// read decodes one little-endian fixed-size value
func read[T any](r io.Reader) (T, error) {
	var v T
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// readAny is read with the result boxed for the metadata map
func readAny[T any](r io.Reader) (interface{}, error) {
	v, err := read[T](r)
	return v, err
}

// readValue reads a metadata value of the given type. Integers keep their
// stored width; callers normalise through GetMetadataInt.
func readValue(r io.Reader, vtype ValueType) (interface{}, error) {
	switch vtype {
	case GGUF_METADATA_VALUE_TYPE_UINT8:
		return readAny[uint8](r)
	case GGUF_METADATA_VALUE_TYPE_INT8:
		return readAny[int8](r)
	case GGUF_METADATA_VALUE_TYPE_UINT16:
		return readAny[uint16](r)
	case GGUF_METADATA_VALUE_TYPE_INT16:
		return readAny[int16](r)
	case GGUF_METADATA_VALUE_TYPE_UINT32:
		return readAny[uint32](r)
	case GGUF_METADATA_VALUE_TYPE_INT32:
		return readAny[int32](r)
	case GGUF_METADATA_VALUE_TYPE_UINT64:
		return readAny[uint64](r)
	case GGUF_METADATA_VALUE_TYPE_INT64:
		return readAny[int64](r)
	case GGUF_METADATA_VALUE_TYPE_FLOAT32:
		return readAny[float32](r)
	case GGUF_METADATA_VALUE_TYPE_FLOAT64:
		return readAny[float64](r)
	case GGUF_METADATA_VALUE_TYPE_BOOL:
		b, err := read[uint8](r)
		return b != 0, err
	case GGUF_METADATA_VALUE_TYPE_STRING:
		return readString(r)
	case GGUF_METADATA_VALUE_TYPE_ARRAY:
		return readArray(r)
	default:
		return nil, fmt.Errorf("unsupported metadata type: %d", vtype)
	}
}

// readString reads a u64 length-prefixed string
func readString(r io.Reader) (string, error) {
	length, err := read[uint64](r)
	if err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	if length > maxStringLen {
		return "", fmt.Errorf("string length too large: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read string data: %w", err)
	}
	return string(buf), nil
}

// readArray reads an element type, a count and that many values
func readArray(r io.Reader) ([]interface{}, error) {
	elemType, err := read[ValueType](r)
	if err != nil {
		return nil, fmt.Errorf("failed to read array element type: %w", err)
	}
	length, err := read[uint64](r)
	if err != nil {
		return nil, fmt.Errorf("failed to read array length: %w", err)
	}
	if length > maxArrayLen {
		return nil, fmt.Errorf("array length too large: %d", length)
	}

	arr := make([]interface{}, length)
	for i := range arr {
		if arr[i], err = readValue(r, elemType); err != nil {
			return nil, fmt.Errorf("failed to read array element %d: %w", i, err)
		}
	}
	return arr, nil
}

// parseTensorInfo reads the tensor index that follows the metadata
func (g *GGUFFile) parseTensorInfo(r io.Reader) error {
	for i := uint64(0); i < g.tensorCount; i++ {
		name, err := readString(r)
		if err != nil {
			return fmt.Errorf("failed to read tensor name %d: %w", i, err)
		}
		info, err := readTensorInfo(r, name)
		if err != nil {
			return err
		}
		g.Tensors[name] = info
		g.order = append(g.order, name)
	}
	return nil
}

func readTensorInfo(r io.Reader, name string) (*TensorInfo, error) {
	nDims, err := read[uint32](r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dimension count for %s: %w", name, err)
	}
	if nDims > maxDims {
		return nil, fmt.Errorf("too many dimensions for tensor %s: %d", name, nDims)
	}

	info := &TensorInfo{Name: name, Dims: make([]uint64, nDims)}
	if err := binary.Read(r, binary.LittleEndian, info.Dims); err != nil {
		return nil, fmt.Errorf("failed to read dimensions for %s: %w", name, err)
	}
	if info.Type, err = read[GGMLType](r); err != nil {
		return nil, fmt.Errorf("failed to read type for %s: %w", name, err)
	}
	if info.Offset, err = read[uint64](r); err != nil {
		return nil, fmt.Errorf("failed to read offset for %s: %w", name, err)
	}

	info.Size = calculateTensorSize(info.Dims, info.Type)
	return info, nil
}
