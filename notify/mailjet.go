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
	"fmt"
	"strings"
	"sync"

	"github.com/ausocean/utils/logging"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

const defaultSender = "birdwatch@ausocean.org"

// Mailer is a Publisher that uses the MailJet API to send email. A topic is
// either an email address or a key resolved to addresses by a Lookup.
type Mailer struct {
	mutex      sync.Mutex // Lock access.
	log        logging.Logger
	sender     string   // Sender email address.
	lookup     Lookup   // Topic to recipients (optional).
	filters    []string // Message filters (optional).
	publicKey  string   // Public key for accessing MailJet API.
	privateKey string   // Private key for accessing MailJet API.
	send       func(*mailjet.MessagesV31) error
}

// Init initializes a mailer with the supplied options. See WithSender,
// WithRecipientLookup, WithFilter and WithSecrets for a description of the
// various options. Secrets are required to send actual emails, but can be
// omitted during testing, in which case messages are only logged. It is
// permissable to re-initalize a Mailer with different options, however
// missing options will revert to their defaults.
func (m *Mailer) Init(l logging.Logger, options ...Option) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Set default values.
	m.log = l
	m.sender = defaultSender
	m.lookup = nil
	m.filters = nil
	m.publicKey = ""
	m.privateKey = ""
	m.send = nil

	// Apply options.
	for i, opt := range options {
		err := opt(m)
		if err != nil {
			return fmt.Errorf("could not apply option # %d, %v", i, err)
		}
	}

	if m.send == nil && m.publicKey != "" && m.privateKey != "" {
		clt := mailjet.NewMailjetClient(m.publicKey, m.privateKey)
		m.send = func(msgs *mailjet.MessagesV31) error {
			_, err := clt.SendMailV31(msgs)
			return err
		}
	}

	return nil
}

// Publish implements Publisher.Publish. With filters, all filters must
// match the body in order to send.
func (m *Mailer) Publish(ctx context.Context, topic, subject, body string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, f := range m.filters {
		if !strings.Contains(body, f) {
			m.log.Debug("filter applied, not sending", "filter", f, "topic", topic)
			return nil
		}
	}

	recipients := []string{topic}
	if m.lookup != nil {
		recipients = m.lookup(ctx, topic)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients for topic %s", topic)
	}

	m.log.Info("sending email", "recipients", recipients, "subject", subject)
	if m.send == nil {
		return nil
	}

	to := make(mailjet.RecipientsV31, len(recipients))
	for i, r := range recipients {
		to[i] = mailjet.RecipientV31{Email: r}
	}
	msgs := mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: m.sender},
		To:       &to,
		Subject:  subject,
		TextPart: body,
	}}}
	err := m.send(&msgs)
	if err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	return nil
}
