/*
DESCRIPTION
  Classifier backed by AWS Rekognition label detection.

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
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Rekognition request defaults.
const (
	DefaultMaxLabels     = 50
	DefaultMinConfidence = 80
)

// DetectLabelsAPI is the subset of the Rekognition client used here.
type DetectLabelsAPI interface {
	DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// Rekognition implements Classifier using AWS Rekognition.
type Rekognition struct {
	api           DetectLabelsAPI
	maxLabels     int32
	minConfidence float32
}

// RekognitionOption is a functional option supplied to NewRekognition.
type RekognitionOption func(*Rekognition)

// WithMaxLabels sets the maximum number of labels requested per frame.
func WithMaxLabels(n int32) RekognitionOption {
	return func(r *Rekognition) { r.maxLabels = n }
}

// WithMinConfidence sets the minimum label confidence requested.
func WithMinConfidence(c float32) RekognitionOption {
	return func(r *Rekognition) { r.minConfidence = c }
}

// NewRekognition returns a Rekognition classifier using the given AWS
// configuration.
func NewRekognition(cfg aws.Config, opts ...RekognitionOption) *Rekognition {
	return NewRekognitionWithAPI(rekognition.NewFromConfig(cfg), opts...)
}

// NewRekognitionWithAPI returns a Rekognition classifier using api.
func NewRekognitionWithAPI(api DetectLabelsAPI, opts ...RekognitionOption) *Rekognition {
	r := &Rekognition{api: api, maxLabels: DefaultMaxLabels, minConfidence: DefaultMinConfidence}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify implements Classifier.Classify.
func (r *Rekognition) Classify(ctx context.Context, jpeg []byte) ([]Label, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("empty image")
	}
	out, err := r.api.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: jpeg},
		MaxLabels:     aws.Int32(r.maxLabels),
		MinConfidence: aws.Float32(r.minConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("could not detect labels: %w", err)
	}

	labels := make([]Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		if l.Name == nil {
			continue
		}
		labels = append(labels, Label{Name: *l.Name, Confidence: float64(aws.ToFloat32(l.Confidence))})
	}
	return labels, nil
}
