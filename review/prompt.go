package review

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemInstruction is sent with every completion request.
const SystemInstruction = "You are an expert in agile methodologies and user story writing. Provide specific, actionable feedback."

//go:embed prompts.json
var bundledPrompts []byte

// Prompt is one configured category of automated feedback.
type Prompt struct {
	Title  string `json:"title" yaml:"title"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// Instruction is the message pair sent to the LLM.
type Instruction struct {
	System string
	User   string
}

// BuildInstruction combines the story, the definition of done and the
// prompt text into one user message.
func BuildInstruction(story, definitionOfDone string, p Prompt) Instruction {
	user := fmt.Sprintf("User Story: %s\nDefinition of Done: %s\n\n%s", story, definitionOfDone, p.Prompt)
	return Instruction{
		System: SystemInstruction,
		User:   user,
	}
}

// LoadPrompts reads the prompt list from path, or the bundled list when
// path is empty. Files ending in .yaml or .yml are parsed as YAML.
func LoadPrompts(path string) ([]Prompt, error) {
	if path == "" {
		return ParsePrompts(bundledPrompts, ".json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return ParsePrompts(data, filepath.Ext(path))
}

func ParsePrompts(data []byte, ext string) ([]Prompt, error) {
	var prompts []Prompt
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &prompts); err != nil {
			return nil, fmt.Errorf("parse prompts yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &prompts); err != nil {
			return nil, fmt.Errorf("parse prompts json: %w", err)
		}
	}
	if len(prompts) == 0 {
		return nil, errors.New("prompt list is empty")
	}
	for i, p := range prompts {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("prompt %d: title and prompt are required", i)
		}
	}
	return prompts, nil
}
