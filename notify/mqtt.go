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
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250 // ms
)

// tokenPublisher is the subset of mqtt.Client used by MQTT.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// mqttMessage is the JSON payload published to MQTT topics.
type mqttMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MQTT publishes JSON messages to MQTT topics.
type MQTT struct {
	client tokenPublisher
	close  func()
}

// NewMQTT connects to broker, e.g., tcp://localhost:1883, and returns an
// MQTT publisher.
func NewMQTT(broker, clientID string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to %s", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", broker, err)
	}
	return &MQTT{client: c, close: func() { c.Disconnect(mqttQuiesce) }}, nil
}

// Publish implements Publisher.Publish.
func (p *MQTT) Publish(ctx context.Context, topic, subject, body string) error {
	payload, err := json.Marshal(mqttMessage{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("could not marshal message: %w", err)
	}
	tok := p.client.Publish(topic, mqttQoS, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("could not publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTT) Close() {
	if p.close != nil {
		p.close()
	}
}
