package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raine/landadmin/internal/api"
	"github.com/raine/landadmin/internal/records"
)

// parseParams turns key=value arguments into query parameters.
func parseParams(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

// readRecord reads a JSON object given inline, from @file, or from stdin
// when arg is "-".
func readRecord(arg string, stdin io.Reader) (records.Record, error) {
	var raw []byte
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = b
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg[1:], err)
		}
		raw = b
	default:
		raw = []byte(arg)
	}

	var rec records.Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return rec, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printPayload prints JSON bodies indented and anything else as text.
func printPayload(w io.Writer, payload *api.Payload) error {
	if payload == nil {
		fmt.Fprintln(w, "OK")
		return nil
	}
	value, err := payload.Value()
	if err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if s, ok := value.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	return printJSON(w, value)
}
