// SPDX-License-Identifier: GPL-3.0-or-later

// Package mqtt publishes paced session traces to an MQTT broker.
//
// The [*Client] wraps the Eclipse Paho library. The [*Exporter] turns
// trace events into JSON messages published on <prefix>/<session>/<kind>
// topics, where kind is one of "cwnd", "drop", "tx" and "state".
package mqtt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes a message on a topic.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Config holds the broker connection parameters.
type Config struct {
	BrokerURL string // e.g., "tcp://127.0.0.1:1883"
	ClientID  string // optional; a random identifier is generated if empty
	Username  string // optional
	Password  string // optional
}

// operationTimeout bounds connect and publish operations.
const operationTimeout = 10 * time.Second

// Client is a publish-only MQTT client.
//
// Construct using [NewClient].
type Client struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	config Config
	paho   paho.Client
}

var _ Publisher = &Client{}

// NewClient validates the configuration and constructs a [*Client]. The
// connection is not opened until [*Client.Connect] is called.
func NewClient(config Config) (*Client, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("mqtt: BrokerURL required")
	}
	if config.ClientID == "" {
		id, err := generateClientID()
		if err != nil {
			return nil, fmt.Errorf("mqtt: generate client id: %w", err)
		}
		config.ClientID = id
	}

	client := &Client{config: config}
	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetKeepAlive(20 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			if client.Logger != nil {
				client.Logger.Warn("mqttConnectionLost", slog.Any("err", err))
			}
		})
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	client.paho = paho.NewClient(opts)
	return client, nil
}

// generateClientID returns "pacesim-<16 hex digits>".
func generateClientID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "pacesim-" + hex.EncodeToString(buf[:]), nil
}

// Connect opens the connection to the broker.
func (c *Client) Connect() error {
	token := c.paho.Connect()
	if !token.WaitTimeout(operationTimeout) {
		return errors.New("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect failed: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Info(
			"mqttConnectDone",
			slog.String("brokerURL", c.config.BrokerURL),
			slog.String("clientID", c.config.ClientID),
		)
	}
	return nil
}

// Publish implements [Publisher].
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	token := c.paho.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("mqtt: publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker with a 250 ms quiesce period.
func (c *Client) Close() error {
	if c.paho.IsConnectionOpen() {
		c.paho.Disconnect(250)
	}
	return nil
}
