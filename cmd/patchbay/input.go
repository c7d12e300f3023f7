package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/kompox/patchbay/domain/model"
)

// readFileArg reads path, or stdin when path is "-".
func readFileArg(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("spec file required (-f)")
	}
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return io.ReadAll(r)
}

// readYAMLSpec decodes a YAML (or JSON) spec file into v.
func readYAMLSpec(cmd *cobra.Command, path string, v any) error {
	b, err := readFileArg(cmd, path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// readEnvelopeFile reads a JSON or JSONC envelope. Comments and trailing
// commas are stripped before the document reaches the validator.
func readEnvelopeFile(cmd *cobra.Command, path string) (json.RawMessage, error) {
	b, err := readFileArg(cmd, path)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(jsonc.ToJSON(b)), nil
}

// envelopeFromText builds a minimal envelope around a free-text instruction.
func envelopeFromText(text, engine string, maxOps int) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("instruction text or envelope file (-f) required")
	}
	env := &model.CommandEnvelope{Instruction: text, Engine: engine}
	if maxOps > 0 {
		env.Constraints = &model.Constraints{MaxOps: maxOps}
	}
	return json.Marshal(env)
}

// parseKeyValues turns k=v pairs into a map.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value: %q", p)
		}
		out[k] = v
	}
	return out, nil
}
