// SPDX-License-Identifier: GPL-3.0-or-later

package mqtt_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rbmk-project/pacesim/mqtt"
	"github.com/rbmk-project/pacesim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// published is a message captured by fakePublisher.
type published struct {
	topic   string
	qos     byte
	message mqtt.Message
}

// fakePublisher records messages and optionally fails.
type fakePublisher struct {
	err  error
	msgs []published
}

func (fp *fakePublisher) Publish(topic string, qos byte, payload []byte) error {
	if fp.err != nil {
		return fp.err
	}
	var msg mqtt.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	fp.msgs = append(fp.msgs, published{topic: topic, qos: qos, message: msg})
	return nil
}

func TestExporter(t *testing.T) {
	pub := &fakePublisher{}
	exp := mqtt.NewExporter(pub, "/lab/pacesim/", 2)
	var hub trace.Hub
	unsubscribe := exp.Observe("n2-n4", &hub)

	hub.Cwnd.Emit(trace.CwndEvent{Time: 2500 * time.Millisecond, Old: 536, New: 1072})
	hub.Drop.Emit(trace.DropEvent{Time: 3 * time.Second})
	hub.Tx.Emit(trace.TxEvent{Time: 2 * time.Second, Bytes: 1000, Seq: 1})
	hub.State.Emit(trace.StateEvent{Time: 4 * time.Second, State: "failed", Err: errors.New("connection reset")})

	require.Len(t, pub.msgs, 4)

	assert.Equal(t, "lab/pacesim/n2-n4/cwnd", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)
	require.NotNil(t, pub.msgs[0].message.Old)
	require.NotNil(t, pub.msgs[0].message.New)
	assert.Equal(t, uint32(536), *pub.msgs[0].message.Old)
	assert.Equal(t, uint32(1072), *pub.msgs[0].message.New)
	assert.Equal(t, 2.5, pub.msgs[0].message.Time)

	assert.Equal(t, "lab/pacesim/n2-n4/drop", pub.msgs[1].topic)
	assert.Equal(t, mqtt.Message{Session: "n2-n4", Kind: "drop", Time: 3}, pub.msgs[1].message)

	assert.Equal(t, "lab/pacesim/n2-n4/tx", pub.msgs[2].topic)
	assert.Equal(t, mqtt.Message{Session: "n2-n4", Kind: "tx", Time: 2, Bytes: 1000, Seq: 1}, pub.msgs[2].message)

	assert.Equal(t, "lab/pacesim/n2-n4/state", pub.msgs[3].topic)
	assert.Equal(t, mqtt.Message{
		Session: "n2-n4",
		Kind:    "state",
		Time:    4,
		State:   "failed",
		Err:     "connection reset",
	}, pub.msgs[3].message)

	unsubscribe()
	hub.Drop.Emit(trace.DropEvent{})
	assert.Len(t, pub.msgs, 4)
	assert.Equal(t, 0, exp.Failures())
}

func TestExporterFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	exp := mqtt.NewExporter(pub, "pacesim", 0)
	var hub trace.Hub
	exp.Observe("n1-n0", &hub)

	hub.Tx.Emit(trace.TxEvent{Bytes: 1040, Seq: 1})
	hub.Tx.Emit(trace.TxEvent{Bytes: 1040, Seq: 2})

	assert.Equal(t, 2, exp.Failures())
	assert.Equal(t, "pacesim/n1-n0/tx", exp.Topic("n1-n0", "tx"))
}

func TestNewClient(t *testing.T) {
	t.Run("broker required", func(t *testing.T) {
		_, err := mqtt.NewClient(mqtt.Config{})
		assert.Error(t, err)
	})

	t.Run("unconnected close", func(t *testing.T) {
		client, err := mqtt.NewClient(mqtt.Config{BrokerURL: "tcp://127.0.0.1:1883"})
		require.NoError(t, err)
		assert.NoError(t, client.Close())
	})

	t.Run("connection refused", func(t *testing.T) {
		client, err := mqtt.NewClient(mqtt.Config{
			BrokerURL: "tcp://127.0.0.1:1",
			ClientID:  "pacesim-test",
		})
		require.NoError(t, err)
		assert.Error(t, client.Connect())
	})
}
