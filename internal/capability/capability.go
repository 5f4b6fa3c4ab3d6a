// Package capability implements the deny-by-default capability model:
// a flat tagged-variant Capability, additive Set composition over four
// built-in base policies, and glob-based path/host matching. Grounded on
// spec.md §4.4; kept flat per spec.md §9 ("do not mirror source-side trait
// inheritance").
package capability

import "fmt"

// Kind tags the variant of a Capability.
type Kind int

const (
	KindFilesystemRead Kind = iota
	KindFilesystemWrite
	KindNetworkConnect
	KindEnvironmentRead
	KindClock
	KindRandom
	KindHostFunction
)

func (k Kind) String() string {
	switch k {
	case KindFilesystemRead:
		return "filesystem-read"
	case KindFilesystemWrite:
		return "filesystem-write"
	case KindNetworkConnect:
		return "network-connect"
	case KindEnvironmentRead:
		return "environment-read"
	case KindClock:
		return "clock"
	case KindRandom:
		return "random"
	case KindHostFunction:
		return "host-function"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NetworkRule describes one NetworkConnect grant.
type NetworkRule struct {
	AllowHosts  []string // exact hostname or ".example.com" suffix match
	BlockHosts  []string // overrides AllowHosts on match
	AllowPorts  []int
	RequireTLS  bool
}

// Capability is a single typed grant. Exactly one field group is
// meaningful, selected by Kind.
type Capability struct {
	Kind Kind

	// FilesystemRead / FilesystemWrite
	PathPatterns []string

	// NetworkConnect
	Network NetworkRule

	// EnvironmentRead
	NamePatterns []string

	// HostFunction
	FunctionName string
}

func FilesystemRead(patterns ...string) Capability {
	return Capability{Kind: KindFilesystemRead, PathPatterns: patterns}
}

func FilesystemWrite(patterns ...string) Capability {
	return Capability{Kind: KindFilesystemWrite, PathPatterns: patterns}
}

func NetworkConnect(rule NetworkRule) Capability {
	return Capability{Kind: KindNetworkConnect, Network: rule}
}

func EnvironmentRead(patterns ...string) Capability {
	return Capability{Kind: KindEnvironmentRead, NamePatterns: patterns}
}

func Clock() Capability { return Capability{Kind: KindClock} }

func Random() Capability { return Capability{Kind: KindRandom} }

func HostFunction(name string) Capability {
	return Capability{Kind: KindHostFunction, FunctionName: name}
}
