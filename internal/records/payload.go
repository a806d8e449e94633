package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Payload is the file format shared by the scrapers and the mock generator.
// JSON files are read through the YAML decoder.
type Payload struct {
	Jobs      []Job               `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Proposals []ProposalViewEvent `json:"proposals,omitempty" yaml:"proposals,omitempty"`
	Connects  []ConnectsEntry     `json:"connects,omitempty" yaml:"connects,omitempty"`
}

func LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return ParsePayload(data)
}

func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return &p, nil
}

// WritePayload writes JSON for .json paths and YAML otherwise.
func WritePayload(path string, p *Payload) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}
