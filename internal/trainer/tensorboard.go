package trainer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xupit3r/tunebox/internal/logging"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maskedCRC is the checksum TFRecord framing uses
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// EventWriter appends scalar summaries to a TensorBoard event file
type EventWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewEventWriter creates events.out.tfevents.<unix>.<host> under dir
func NewEventWriter(dir string) (*EventWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("events.out.tfevents.%d.%s", now.Unix(), host))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating event file: %w", err)
	}

	w := &EventWriter{file: f, buf: bufio.NewWriter(f), path: path}
	if err := w.writeRecord(encodeFileVersion(now)); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the event file location
func (w *EventWriter) Path() string {
	return w.path
}

// AddScalars records one value per tag at step
func (w *EventWriter) AddScalars(step int, values map[string]float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tags := make([]string, 0, len(values))
	for tag := range values {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return w.writeRecord(encodeScalarEvent(time.Now(), step, tags, values))
}

// Flush pushes buffered records to disk
func (w *EventWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Close flushes and closes the event file
func (w *EventWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// writeRecord frames data as a TFRecord: length, masked crc of the
// length, payload, masked crc of the payload.
func (w *EventWriter) writeRecord(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	for _, chunk := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.buf.Write(chunk); err != nil {
			return fmt.Errorf("writing event record: %w", err)
		}
	}
	return nil
}

func wallTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Event fields: wall_time=1 (double), step=2 (int64), file_version=3
// (string), summary=5 (Summary). Summary.value=1, Value.tag=1,
// Value.simple_value=2 (float).
func encodeFileVersion(t time.Time) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(wallTime(t)))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, "brain.Event:2")
	return b
}

func encodeScalarEvent(t time.Time, step int, tags []string, values map[string]float64) []byte {
	var summary []byte
	for _, tag := range tags {
		var value []byte
		value = protowire.AppendTag(value, 1, protowire.BytesType)
		value = protowire.AppendString(value, tag)
		value = protowire.AppendTag(value, 2, protowire.Fixed32Type)
		value = protowire.AppendFixed32(value, math.Float32bits(float32(values[tag])))

		summary = protowire.AppendTag(summary, 1, protowire.BytesType)
		summary = protowire.AppendBytes(summary, value)
	}

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(wallTime(t)))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(step))
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, summary)
	return b
}

// TensorBoardCallback mirrors log entries into an event file under
// <logging_dir>/<run_name>.
type TensorBoardCallback struct {
	BaseCallback
	writer *EventWriter
}

func NewTensorBoardCallback() *TensorBoardCallback {
	return &TensorBoardCallback{}
}

func (c *TensorBoardCallback) OnTrainBegin(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	dir := args.LoggingDir
	if dir == "" {
		dir = filepath.Join(args.OutputDir, "runs")
	}
	if args.RunName != "" {
		dir = filepath.Join(dir, args.RunName)
	}
	w, err := NewEventWriter(dir)
	if err != nil {
		logging.Warnf("TensorBoard logging disabled: %v", err)
		return
	}
	c.writer = w
	logging.Debugf("Writing TensorBoard events to %s", w.Path())
}

func (c *TensorBoardCallback) OnLog(args *TrainingArguments, state *TrainerState, control *TrainerControl, logs map[string]float64) {
	if c.writer == nil {
		return
	}
	scalars := make(map[string]float64, len(logs))
	for k, v := range logs {
		scalars["train/"+k] = v
	}
	if err := c.writer.AddScalars(state.GlobalStep, scalars); err != nil {
		logging.Warnf("Failed to write TensorBoard event: %v", err)
		return
	}
	if err := c.writer.Flush(); err != nil {
		logging.Warnf("Failed to flush TensorBoard events: %v", err)
	}
}

func (c *TensorBoardCallback) OnTrainEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	if c.writer == nil {
		return
	}
	if err := c.writer.Close(); err != nil {
		logging.Warnf("Failed to close TensorBoard writer: %v", err)
	}
	c.writer = nil
}
