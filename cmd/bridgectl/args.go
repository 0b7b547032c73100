package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseArgs turns command-line words into call arguments. A word that is
// valid JSON is passed through as is; anything else is sent as a string.
func parseArgs(words []string) []any {
	args := make([]any, 0, len(words))
	for _, w := range words {
		if json.Valid([]byte(w)) {
			args = append(args, json.RawMessage(w))
			continue
		}
		args = append(args, w)
	}
	return args
}

// parseLine splits a console line of the form `op json-value...`.
func parseLine(line string) (string, []any, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, errors.New("empty input")
	}
	op, rest, _ := strings.Cut(line, " ")

	var args []any
	dec := json.NewDecoder(strings.NewReader(rest))
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("argument %d: %w", len(args)+1, err)
		}
		args = append(args, raw)
	}
	return op, args, nil
}

// indent pretty-prints a JSON result, returning it unchanged if it is not
// valid JSON.
func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
