/*
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
	"errors"
)

// Option is a functional option supplied to Init.
type Option func(*Mailer) error

// Lookup is a function that returns the email recipients for a topic.
// It is used with WithRecipientLookup.
type Lookup func(ctx context.Context, topic string) []string

// WithSender sets the sender email address.
func WithSender(sender string) Option {
	return func(m *Mailer) error {
		if sender == "" {
			return errors.New("empty sender")
		}
		m.sender = sender
		return nil
	}
}

// WithRecipientLookup sets a function to look up recipients given a topic.
// Without it, topics are used as email addresses.
func WithRecipientLookup(lookup Lookup) Option {
	return func(m *Mailer) error {
		m.lookup = lookup
		return nil
	}
}

// WithFilter applies a filter string. If multiple WithFilter options
// are applied, they form a compound conjunctive filter.
// Specifiying an empty filter string clears the filter.
func WithFilter(filter string) Option {
	return func(m *Mailer) error {
		if filter == "" {
			m.filters = nil
			return nil
		}
		m.filters = append(m.filters, filter)
		return nil
	}
}

// WithSecrets applies the secrets necessary for sending email,
// notably the public and private mail API keys. This is always
// required, unless testing.
func WithSecrets(secrets map[string]string) Option {
	return func(m *Mailer) error {
		var ok bool
		m.publicKey, ok = secrets["mailjetPublicKey"]
		if !ok {
			return errors.New("mailjetPublicKey secret not found")
		}
		m.privateKey, ok = secrets["mailjetPrivateKey"]
		if !ok {
			return errors.New("mailjetPrivateKey secret not found")
		}
		return nil
	}
}
