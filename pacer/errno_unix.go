//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package pacer

import "golang.org/x/sys/unix"

// EWOULDBLOCK is the error a [Socket] returns to signal backpressure.
const EWOULDBLOCK = unix.EWOULDBLOCK
