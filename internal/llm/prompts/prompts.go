package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Templates embed.FS

var topicTagRegex = regexp.MustCompile(`(?i)</?\s*(topic|system-instructions)\b[^>]*>`)

const (
	maxTopicRunes  = 500
	maxAvoid       = 20
	MinOptions     = 2
	MaxOptions     = 6
	DefaultOptions = 4
)

// Difficulty selects a drafting prompt variant.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

var difficulties = []Difficulty{Easy, Medium, Hard}

// ParseDifficulty accepts "", "easy", "medium" and "hard". Empty means medium.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return Medium, nil
	}
	for _, v := range difficulties {
		if d == v {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// DraftData holds template data for drafting prompts.
type DraftData struct {
	Topic   string
	Options int
	Avoid   []string
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Difficulty]*template.Template
)

// Load parses the drafting templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		loaded := make(map[Difficulty]*template.Template, len(difficulties))
		for _, d := range difficulties {
			name := "templates/draft_" + string(d) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(d)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			loaded[d] = tmpl
		}
		templates = loaded
	})
	return loadErr
}

// BuildDraftPrompt renders the system prompt for drafting one question.
// options outside [MinOptions, MaxOptions] falls back to DefaultOptions.
func BuildDraftPrompt(d Difficulty, topic string, options int, avoid []string) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[d]
	if !ok {
		return "", fmt.Errorf("invalid difficulty: %s", d)
	}

	topic = SanitizeTopic(topic)
	if topic == "" {
		return "", errors.New("topic is required")
	}
	if options < MinOptions || options > MaxOptions {
		options = DefaultOptions
	}
	if len(avoid) > maxAvoid {
		avoid = avoid[len(avoid)-maxAvoid:]
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, DraftData{Topic: topic, Options: options, Avoid: avoid}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeTopic strips prompt delimiters and bounds the length of a
// user-supplied topic.
func SanitizeTopic(topic string) string {
	topic = topicTagRegex.ReplaceAllString(topic, "")
	topic = strings.TrimSpace(topic)
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes])
	}
	return topic
}
