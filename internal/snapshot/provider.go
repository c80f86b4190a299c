// Package snapshot produces SystemSnapshot captures for the detection engine.
// The Local provider reads the host it runs on; the File provider replays a
// saved capture for offline analysis and testing.
package snapshot

import (
	"context"
	"sort"
	"strings"

	"github.com/trustplane/hostsentry/internal/model"
)

// Provider produces one snapshot per Collect call. Implementations must
// return output that satisfies the snapshot contract: process names
// lowercase, slices sorted and deduplicated, absent observables left as zero
// values rather than errors.
type Provider interface {
	Collect(ctx context.Context) (*model.SystemSnapshot, error)
	Name() string
}

// normalize enforces the provider output contract in one place so both
// providers and hand-written fixtures produce identical shapes: lowercase
// process names, sorted deduplicated slices, browser entries ordered by
// process name.
func normalize(snap *model.SystemSnapshot) {
	for i, name := range snap.Processes {
		snap.Processes[i] = strings.ToLower(name)
	}
	snap.Processes = sortUnique(snap.Processes)
	snap.Network.MACAddresses = sortUnique(snap.Network.MACAddresses)
	snap.Network.ListeningPorts = sortUniqueInts(snap.Network.ListeningPorts)
	snap.GPU.Devices = sortUnique(snap.GPU.Devices)
	snap.GPU.DriverFlags = sortUnique(snap.GPU.DriverFlags)
	snap.GPU.ProcessNames = sortUnique(snap.GPU.ProcessNames)
	sort.Slice(snap.BrowserConnections, func(i, j int) bool {
		return snap.BrowserConnections[i].Process < snap.BrowserConnections[j].Process
	})
}

func sortUnique(values []string) []string {
	if len(values) == 0 {
		return values
	}
	sort.Strings(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func sortUniqueInts(values []int) []int {
	if len(values) == 0 {
		return values
	}
	sort.Ints(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
