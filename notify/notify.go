/*
DESCRIPTION
  Package notify publishes detection notifications to owner topics over
  SNS, email, MQTT or the log.

LICENSE
  Copyright (C) 2024-2026 the Australian Ocean Lab (AusOcean)

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

	"github.com/ausocean/utils/logging"
)

// Publisher publishes a message to a topic. What a topic is depends on the
// implementation, e.g., an SNS topic ARN, an email address or an MQTT topic.
type Publisher interface {
	Publish(ctx context.Context, topic, subject, body string) error
}

// Log is a Publisher that only logs messages, for standalone use.
type Log struct {
	log logging.Logger
}

// NewLog returns a Log publisher.
func NewLog(l logging.Logger) *Log {
	return &Log{log: l}
}

// Publish implements Publisher.Publish.
func (p *Log) Publish(ctx context.Context, topic, subject, body string) error {
	p.log.Info("notification", "topic", topic, "subject", subject, "body", body)
	return nil
}
