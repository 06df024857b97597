/*
DESCRIPTION
  Package queue consumes stream activation messages from AMQP, or from
  lines of text when running standalone.

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

package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ausocean/utils/logging"
)

// DefaultName is the name of the activation queue.
const DefaultName = "new_stream_subscriptions"

// ErrMalformed is returned for messages that can never be processed.
var ErrMalformed = errors.New("malformed message")

// Message is an activation message.
type Message struct {
	SubscriptionID *int64 `json:"subscription_id"`
}

// Decode decodes an activation message and returns its subscription ID.
// Messages that are not JSON, or lack a positive ID, are malformed.
func Decode(body []byte) (int64, error) {
	var msg Message
	err := json.Unmarshal(body, &msg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.SubscriptionID == nil {
		return 0, fmt.Errorf("%w: missing subscription_id", ErrMalformed)
	}
	if *msg.SubscriptionID <= 0 {
		return 0, fmt.Errorf("%w: invalid subscription_id %d", ErrMalformed, *msg.SubscriptionID)
	}
	return *msg.SubscriptionID, nil
}

// Encode encodes an activation message for id.
func Encode(id int64) []byte {
	b, _ := json.Marshal(Message{SubscriptionID: &id})
	return b
}

// Handler handles an activation. It returns once the activation has been
// taken on, not once it has been carried out. A nil error acknowledges the
// message; a non-nil error returns it to the queue.
type Handler func(ctx context.Context, id int64) error

// Source is a source of activation messages.
type Source interface {
	// Run calls h for each message until ctx is done or the source fails.
	Run(ctx context.Context, h Handler) error
}

// Lines is a Source reading one activation message per line, for
// standalone use. Blank lines are ignored and a line may be a bare ID.
type Lines struct {
	r   io.Reader
	log logging.Logger
}

// NewLines returns a Lines source reading from r.
func NewLines(r io.Reader, l logging.Logger) *Lines {
	return &Lines{r: r, log: l}
}

// Run implements Source.Run. It returns nil at the end of input or when
// ctx is done.
func (s *Lines) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line = <-lines:
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			line = `{"subscription_id":` + line + `}`
		}
		id, err := Decode([]byte(line))
		if err != nil {
			s.log.Warning("discarding message", "line", line, "error", err)
			continue
		}
		err = h(ctx, id)
		if err != nil {
			s.log.Warning("could not handle message", "id", id, "error", err)
		}
	}
}
