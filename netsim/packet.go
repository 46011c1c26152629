//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Packet and related definitions.
//

package netsim

import "github.com/rbmk-project/pacesim/netsim/packet"

// Packet is the [packet.Packet] alias used by this package.
type Packet = packet.Packet
