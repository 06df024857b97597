/*
DESCRIPTION
  Label vocabularies used to partition classifier labels into bird and
  non-bird categories.

AUTHORS
  Mira Okafor <mira@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// defaultVocabulary is parsed once at start up and never mutated.
var defaultVocabulary = mustParseVocabulary(defaultVocabularyYAML)

// Category is the classification of a single label.
type Category int

const (
	Other Category = iota
	NonBird
	Generic
	Specific
)

func (c Category) String() string {
	switch c {
	case NonBird:
		return "non-bird"
	case Generic:
		return "generic"
	case Specific:
		return "specific"
	default:
		return "other"
	}
}

// Vocabulary holds the label sets used by an Interpreter. A Vocabulary is
// immutable once built; use DefaultVocabulary or LoadVocabulary.
type Vocabulary struct {
	generic  map[string]bool
	specific map[string]bool
	nonBird  map[string]bool
}

// vocabularyFile is the YAML representation of a Vocabulary.
type vocabularyFile struct {
	Generic  []string `yaml:"generic"`
	Specific []string `yaml:"specific"`
	NonBird  []string `yaml:"nonbird"`
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() *Vocabulary {
	return defaultVocabulary
}

// LoadVocabulary reads a vocabulary from a YAML file with generic,
// specific and nonbird lists.
func LoadVocabulary(path string) (*Vocabulary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read vocabulary: %w", err)
	}
	return ParseVocabulary(b)
}

// ParseVocabulary parses a YAML vocabulary.
func ParseVocabulary(b []byte) (*Vocabulary, error) {
	var f vocabularyFile
	err := yaml.Unmarshal(b, &f)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal vocabulary: %w", err)
	}
	if len(f.Generic) == 0 && len(f.Specific) == 0 {
		return nil, errors.New("vocabulary has no bird labels")
	}
	return &Vocabulary{
		generic:  toSet(f.Generic),
		specific: toSet(f.Specific),
		nonBird:  toSet(f.NonBird),
	}, nil
}

func mustParseVocabulary(b []byte) *Vocabulary {
	v, err := ParseVocabulary(b)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in vocabulary: %v", err))
	}
	return v
}

func toSet(labels []string) map[string]bool {
	m := make(map[string]bool, len(labels))
	for _, l := range labels {
		m[normalize(l)] = true
	}
	return m
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Categorize returns the category of a label. Non-bird animals take
// precedence, then specific species, then generic bird categories.
// A label containing "bird" that is not otherwise listed is generic.
func (v *Vocabulary) Categorize(label string) Category {
	n := normalize(label)
	switch {
	case v.nonBird[n]:
		return NonBird
	case v.specific[n]:
		return Specific
	case v.generic[n], strings.Contains(n, "bird"):
		return Generic
	default:
		return Other
	}
}
