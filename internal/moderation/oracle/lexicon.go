package oracle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"chaperone/internal/domain"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

type rule struct {
	Verdict string   `yaml:"verdict"`
	Reason  string   `yaml:"reason"`
	Any     []string `yaml:"any"`
	All     []string `yaml:"all"`
	outcome domain.Outcome
}

type lexiconFile struct {
	Rules []rule `yaml:"rules"`
}

// Lexicon is an in-process oracle driven by phrase rules. A rule matches when the draft
// contains any of its "any" phrases, or every one of its "all" phrases.
type Lexicon struct {
	rules []rule
}

func ParseLexicon(r io.Reader) (*Lexicon, error) {
	var file lexiconFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	for i := range file.Rules {
		r := &file.Rules[i]
		outcome, err := domain.ParseOutcome(r.Verdict)
		if err != nil {
			return nil, fmt.Errorf("lexicon rule %d: %w", i, err)
		}
		if len(r.Any) == 0 && len(r.All) == 0 {
			return nil, fmt.Errorf("lexicon rule %d has no phrases", i)
		}
		r.outcome = outcome
		r.Any = normalizeAll(r.Any)
		r.All = normalizeAll(r.All)
	}
	return &Lexicon{rules: file.Rules}, nil
}

// LoadLexicon reads rules from path, or the embedded defaults when path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return ParseLexicon(f)
}

func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(bytes.NewReader(defaultLexicon))
}

func (l *Lexicon) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}
	normalized := normalize(text)
	best := domain.Verdict{Outcome: domain.OutcomeCompliant}
	for _, r := range l.rules {
		if r.outcome < best.Outcome && r.matches(normalized) {
			best = domain.Verdict{Outcome: r.outcome, ReasonCode: r.Reason}
		}
	}
	return best, nil
}

func (r rule) matches(text string) bool {
	for _, p := range r.Any {
		if strings.Contains(text, p) {
			return true
		}
	}
	if len(r.All) == 0 {
		return false
	}
	for _, p := range r.All {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", ",", " ", ".", " ", "!", " ", "?", " ").Replace(s)
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

func normalizeAll(phrases []string) []string {
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = normalize(p)
	}
	return out
}
