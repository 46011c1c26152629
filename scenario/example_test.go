// SPDX-License-Identifier: GPL-3.0-or-later

package scenario_test

import (
	"fmt"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pacesim/scenario"
)

// This example runs the default experiment on lossless links.
func Example() {
	params := scenario.Defaults()
	params.ErrorRate = 0

	sc := scenario.New()
	defer sc.Close()
	runtimex.Try0(sc.AddDefaultSessions(params))

	for _, summary := range sc.Run(params.StopAt) {
		fmt.Printf(
			"%s: %s packets=%d sent=%d received=%d\n",
			summary.Name,
			summary.State,
			summary.PacketsSent,
			summary.BytesSent,
			summary.BytesReceived,
		)
	}

	// Output:
	// n2-n4: completed packets=1 sent=1000 received=1000
	// n1-n0: completed packets=10 sent=10000 received=10000
}
