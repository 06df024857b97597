/*
LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS limits subjects to 100 characters.
const maxSubject = 100

// PublishAPI is the subset of the SNS client used by SNS.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes to SNS topics. Topics are topic ARNs.
type SNS struct {
	api PublishAPI
}

// NewSNS returns an SNS publisher using the given AWS configuration.
func NewSNS(cfg aws.Config) *SNS {
	return &SNS{api: sns.NewFromConfig(cfg)}
}

// NewSNSWithAPI returns an SNS publisher using api.
func NewSNSWithAPI(api PublishAPI) *SNS {
	return &SNS{api: api}
}

// Publish implements Publisher.Publish.
func (p *SNS) Publish(ctx context.Context, topic, subject, body string) error {
	subject = truncate(subject, maxSubject)
	_, err := p.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("could not publish to %s: %w", topic, err)
	}
	return nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
