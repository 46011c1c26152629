// SPDX-License-Identifier: GPL-3.0-or-later

package mqtt

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pacesim/trace"
)

// Message is the JSON payload of an exported trace event. Fields
// that do not apply to the event kind are omitted.
type Message struct {
	Session string  `json:"session"`
	Kind    string  `json:"kind"`
	Time    float64 `json:"t"`
	Old     *uint32 `json:"old,omitempty"`
	New     *uint32 `json:"new,omitempty"`
	Bytes   int     `json:"bytes,omitempty"`
	Seq     uint64  `json:"seq,omitempty"`
	State   string  `json:"state,omitempty"`
	Err     string  `json:"err,omitempty"`
}

// Exporter publishes trace events through a [Publisher].
//
// Construct using [NewExporter].
type Exporter struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	failures int
	prefix   string
	pub      Publisher
	qos      byte
}

// NewExporter creates an [*Exporter] publishing below the given topic prefix.
func NewExporter(pub Publisher, prefix string, qos byte) *Exporter {
	return &Exporter{
		prefix: strings.Trim(prefix, "/"),
		pub:    pub,
		qos:    min(qos, 1),
	}
}

// Failures returns the number of messages that could not be published.
func (e *Exporter) Failures() int {
	return e.failures
}

// Topic returns the topic for the given session and event kind.
func (e *Exporter) Topic(session, kind string) string {
	return e.prefix + "/" + session + "/" + kind
}

// Observe subscribes the exporter to the trace sources of a session.
// The returned function unsubscribes.
func (e *Exporter) Observe(session string, hub *trace.Hub) (unsubscribe func()) {
	unsubs := []func(){
		hub.Cwnd.Subscribe(func(ev trace.CwndEvent) {
			e.publish(Message{
				Session: session,
				Kind:    "cwnd",
				Time:    ev.Time.Seconds(),
				Old:     &ev.Old,
				New:     &ev.New,
			})
		}),
		hub.Drop.Subscribe(func(ev trace.DropEvent) {
			e.publish(Message{Session: session, Kind: "drop", Time: ev.Time.Seconds()})
		}),
		hub.Tx.Subscribe(func(ev trace.TxEvent) {
			e.publish(Message{
				Session: session,
				Kind:    "tx",
				Time:    ev.Time.Seconds(),
				Bytes:   ev.Bytes,
				Seq:     ev.Seq,
			})
		}),
		hub.State.Subscribe(func(ev trace.StateEvent) {
			msg := Message{
				Session: session,
				Kind:    "state",
				Time:    ev.Time.Seconds(),
				State:   ev.State,
			}
			if ev.Err != nil {
				msg.Err = ev.Err.Error()
			}
			e.publish(msg)
		}),
	}
	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

func (e *Exporter) publish(msg Message) {
	topic := e.Topic(msg.Session, msg.Kind)
	payload, err := json.Marshal(msg)
	if err == nil {
		err = e.pub.Publish(topic, e.qos, payload)
	}
	if err != nil {
		e.failures++
		if e.Logger != nil {
			e.Logger.Warn(
				"mqttPublishDone",
				slog.String("topic", topic),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
	}
}
