package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used until the operator saves an edited prompt.
const DefaultSystemPrompt = `あなたは店舗の評判分析を行う優秀なマーケティングアナリストです。` +
	`与えられたGoogleマップのレビューデータ（評価とレビューテキスト）を分析し、` +
	`以下の観点でインサイトをまとめてください。

1. 全体的な顧客満足度の傾向
2. 高評価レビューに共通する強み
3. 低評価レビューに共通する改善点
4. 店舗運営への具体的な提案

結果は日本語で、見出し付きの箇条書きで出力してください。`

// PromptStore persists the editable system prompt as a YAML document.
// Edits survive restarts without touching source code.
type PromptStore struct {
	path string
}

type promptFile struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// NewPromptStore returns a store backed by the file at path. The file is
// created lazily on the first Save.
func NewPromptStore(path string) *PromptStore {
	return &PromptStore{path: path}
}

// Load returns the persisted system prompt, or the default when the file
// does not exist yet.
func (p *PromptStore) Load() (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSystemPrompt, nil
		}
		return "", fmt.Errorf("prompt: read %q: %w", p.path, err)
	}

	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return "", fmt.Errorf("prompt: parse %q: %w", p.path, err)
	}
	if pf.SystemPrompt == "" {
		return DefaultSystemPrompt, nil
	}
	return pf.SystemPrompt, nil
}

// Save overwrites the prompt file with the given text. The write goes through
// a temp file in the same directory so a crash cannot leave a half-written
// prompt behind.
func (p *PromptStore) Save(prompt string) error {
	data, err := yaml.Marshal(promptFile{SystemPrompt: prompt})
	if err != nil {
		return fmt.Errorf("prompt: marshal: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("prompt: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "prompt-*.yaml")
	if err != nil {
		return fmt.Errorf("prompt: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prompt: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prompt: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prompt: replace %q: %w", p.path, err)
	}
	return nil
}
