//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UNIX errno definitions.
//

package netsim

import "golang.org/x/sys/unix"

const (
	// EADDRINUSE is the address in use error.
	EADDRINUSE = unix.EADDRINUSE

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = unix.ECONNREFUSED

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = unix.ECONNRESET

	// EINVAL is the invalid argument error.
	EINVAL = unix.EINVAL

	// EISCONN is the already connected error.
	EISCONN = unix.EISCONN

	// ENOTCONN is the not connected error.
	ENOTCONN = unix.ENOTCONN

	// EPIPE is the broken pipe error.
	EPIPE = unix.EPIPE

	// EWOULDBLOCK is the operation would block error.
	EWOULDBLOCK = unix.EWOULDBLOCK
)
