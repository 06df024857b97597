/*
DESCRIPTION
  Package classify turns raw classifier labels into bird verdicts.

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
	"context"
	"sort"
)

// Number of ranked bird labels kept in a verdict.
const (
	maxRanked = 5
	maxOthers = 5
)

// Label is a single classifier label with its confidence (0-100).
type Label struct {
	Name       string
	Confidence float64
}

// Classifier classifies a single JPEG encoded frame.
type Classifier interface {
	Classify(ctx context.Context, jpeg []byte) ([]Label, error)
}

// Ranked is a bird label with its category.
type Ranked struct {
	Label
	Specific bool
}

// Verdict is the interpretation of one frame's labels.
type Verdict struct {
	Detected    bool     // True if any bird label was present.
	Species     string   // Top ranked label name.
	Confidence  float64  // Confidence of the top ranked label.
	HasSpecific bool     // True if any ranked label is a specific species.
	Ranked      []Ranked // Top bird labels by descending confidence.
	Others      []Label  // Top labels that are not birds, for logging.
}

// Interpreter interprets classifier labels using a vocabulary.
type Interpreter struct {
	vocab *Vocabulary
}

// NewInterpreter returns an Interpreter using v, or the default
// vocabulary if v is nil.
func NewInterpreter(v *Vocabulary) *Interpreter {
	if v == nil {
		v = DefaultVocabulary()
	}
	return &Interpreter{vocab: v}
}

// Interpret partitions labels and ranks the bird labels by descending
// confidence. Specific and generic labels share one ranking; ties keep
// their input order. An empty or bird-free label set yields a verdict
// with Detected false.
func (in *Interpreter) Interpret(labels []Label) Verdict {
	var (
		birds  []Ranked
		others []Label
	)
	for _, l := range labels {
		switch in.vocab.Categorize(l.Name) {
		case Specific:
			birds = append(birds, Ranked{Label: l, Specific: true})
		case Generic:
			birds = append(birds, Ranked{Label: l})
		case Other:
			if len(others) < maxOthers {
				others = append(others, l)
			}
		}
	}

	if len(birds) == 0 {
		return Verdict{Others: others}
	}

	sort.SliceStable(birds, func(i, j int) bool {
		return birds[i].Confidence > birds[j].Confidence
	})
	if len(birds) > maxRanked {
		birds = birds[:maxRanked]
	}

	v := Verdict{
		Detected:   true,
		Species:    birds[0].Name,
		Confidence: birds[0].Confidence,
		Ranked:     birds,
		Others:     others,
	}
	// Any specific species in the top ranks counts, not only the top one, so
	// a generic top label with a specific runner-up is still specific.
	for _, b := range birds {
		if b.Specific {
			v.HasSpecific = true
			break
		}
	}
	return v
}
