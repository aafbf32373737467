package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xupit3r/tunebox/internal/chat"
)

// Keys every JSONL record must carry
var requiredKeys = []string{"instruction", "input", "output"}

// Record is one instruction example with its rendered training text
type Record struct {
	Instruction string
	Input       string
	Output      string
	Text        string
}

// KeyError reports a record that lacks a required key
type KeyError struct {
	Line int
	Key  string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("line %d: missing key %q", e.Line, e.Key)
}

// FieldTypeError reports a required key whose value is not a JSON string
type FieldTypeError struct {
	Line int
	Key  string
	Got  string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("line %d: key %q must be a string, got %s", e.Line, e.Key, e.Got)
}

// LoadJSONL reads one JSON object per non-blank line and renders each
// record's training text. A malformed line, a missing key or a non-string
// value fails the whole load.
func LoadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid JSON: %w", path, lineNo, err)
		}

		fields := make([]string, len(requiredKeys))
		for i, key := range requiredKeys {
			v, ok := obj[key]
			if !ok {
				return nil, &KeyError{Line: lineNo, Key: key}
			}
			s, ok := v.(string)
			if !ok {
				return nil, &FieldTypeError{Line: lineNo, Key: key, Got: jsonType(v)}
			}
			fields[i] = s
		}

		records = append(records, Record{
			Instruction: fields[0],
			Input:       fields[1],
			Output:      fields[2],
			Text:        chat.Render(fields[0], fields[1], fields[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	return records, nil
}

// jsonType names the JSON type of a decoded value
func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
