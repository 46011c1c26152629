// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// Writer renders trace events as text lines.
//
// Congestion window changes are written as "<seconds>\t<new>" and
// drops as "RxDrop at <seconds>".
type Writer struct {
	// W is where to write. It must not be nil.
	W io.Writer

	// Prefix is optionally prepended to every line.
	Prefix string
}

// Attach subscribes the [*Writer] to the cwnd and drop sources of the hub.
func (w *Writer) Attach(hub *Hub) {
	hub.Cwnd.Subscribe(w.WriteCwnd)
	hub.Drop.Subscribe(w.WriteDrop)
}

// WriteCwnd writes a congestion window change.
func (w *Writer) WriteCwnd(ev CwndEvent) {
	fmt.Fprintf(w.W, "%s%s\t%d\n", w.Prefix, Seconds(ev.Time), ev.New)
}

// WriteDrop writes a receive-side drop.
func (w *Writer) WriteDrop(ev DropEvent) {
	fmt.Fprintf(w.W, "%sRxDrop at %s\n", w.Prefix, Seconds(ev.Time))
}

// Seconds formats a virtual time as seconds using the
// shortest representation (e.g., "2.00832").
func Seconds(t time.Duration) string {
	return strconv.FormatFloat(t.Seconds(), 'g', -1, 64)
}
