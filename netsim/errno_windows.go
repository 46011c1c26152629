//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Windows errno definitions.
//

package netsim

import "golang.org/x/sys/windows"

const (
	// EADDRINUSE is the address in use error.
	EADDRINUSE = windows.WSAEADDRINUSE

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = windows.WSAECONNREFUSED

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = windows.WSAECONNRESET

	// EINVAL is the invalid argument error.
	EINVAL = windows.WSAEINVAL

	// EISCONN is the already connected error.
	EISCONN = windows.WSAEISCONN

	// ENOTCONN is the not connected error.
	ENOTCONN = windows.WSAENOTCONN

	// EPIPE is the broken pipe error.
	EPIPE = windows.WSAESHUTDOWN

	// EWOULDBLOCK is the operation would block error.
	EWOULDBLOCK = windows.WSAEWOULDBLOCK
)
