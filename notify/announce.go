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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const announceTimeout = 10 * time.Second

// Announcer posts detected species names to a webhook, e.g., a speaker
// that reads them out.
type Announcer struct {
	url    string
	client *http.Client
}

// NewAnnouncer returns an Announcer posting to url.
func NewAnnouncer(url string) *Announcer {
	return &Announcer{url: url, client: &http.Client{Timeout: announceTimeout}}
}

// Announce posts {"text": species} to the webhook.
func (a *Announcer) Announce(ctx context.Context, species string) error {
	b, err := json.Marshal(struct {
		Text string `json:"text"`
	}{species})
	if err != nil {
		return fmt.Errorf("could not marshal announcement: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not post announcement: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("announcement rejected with status %d", resp.StatusCode)
	}
	return nil
}
