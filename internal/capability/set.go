package capability

// BasePolicy is one of the four built-in permissiveness levels forming the
// total order Strict ⊂ Moderate ⊂ Permissive ⊂ Trusted (spec.md §4.4).
type BasePolicy int

const (
	Strict BasePolicy = iota
	Moderate
	Permissive
	Trusted
)

func (b BasePolicy) String() string {
	switch b {
	case Strict:
		return "strict"
	case Moderate:
		return "moderate"
	case Permissive:
		return "permissive"
	case Trusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// baseGrants returns the capabilities a BasePolicy contributes before any
// additive grants are layered on. There is no "deny" grant: removing
// permission means starting from a stricter base (spec.md §4.4).
func baseGrants(b BasePolicy) []Capability {
	switch b {
	case Strict:
		return nil
	case Moderate:
		return []Capability{Clock(), Random()}
	case Permissive:
		return []Capability{
			Clock(),
			Random(),
			EnvironmentRead("LANG", "TZ", "PATH"),
		}
	case Trusted:
		return []Capability{
			Clock(),
			Random(),
			EnvironmentRead("**"),
			FilesystemRead("**"),
			FilesystemWrite("**"),
			NetworkConnect(NetworkRule{AllowHosts: []string{"**"}, AllowPorts: []int{AnyPort}}),
		}
	default:
		return nil
	}
}

// Set is an unordered composition of a BasePolicy plus additive grants.
// Evaluation is "any matching grant ⇒ allowed" (spec.md §4.4).
type Set struct {
	base   BasePolicy
	grants []Capability
}

// NewSet builds a Set from a base policy plus extra grants, validating the
// result.
func NewSet(base BasePolicy, extra ...Capability) (Set, error) {
	s := Set{base: base}
	s.grants = append(s.grants, baseGrants(base)...)
	s.grants = append(s.grants, extra...)
	if err := ValidateSet(s); err != nil {
		return Set{}, err
	}
	return s, nil
}

// Base reports the Set's base policy.
func (s Set) Base() BasePolicy { return s.base }

// Grants returns a copy of every capability composing the set (base grants
// plus additive ones).
func (s Set) Grants() []Capability {
	out := make([]Capability, len(s.grants))
	copy(out, s.grants)
	return out
}

// Allows reports whether ask is permitted: any grant of the same Kind whose
// pattern/host/port fields cover ask allows it.
func (s Set) Allows(ask Capability) (bool, error) {
	switch ask.Kind {
	case KindClock, KindRandom:
		return s.hasExactKind(ask.Kind), nil

	case KindFilesystemRead, KindFilesystemWrite:
		path := firstPattern(ask.PathPatterns)
		for _, g := range s.grants {
			if g.Kind != ask.Kind {
				continue
			}
			ok, err := matchesAnyPath(g.PathPatterns, path)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case KindEnvironmentRead:
		name := firstPattern(ask.NamePatterns)
		for _, g := range s.grants {
			if g.Kind != KindEnvironmentRead {
				continue
			}
			ok, err := matchesAnyPath(g.NamePatterns, name)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case KindNetworkConnect:
		return s.allowsNetwork(ask.Network), nil

	case KindHostFunction:
		for _, g := range s.grants {
			if g.Kind == KindHostFunction && g.FunctionName == ask.FunctionName {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, nil
	}
}

func (s Set) hasExactKind(k Kind) bool {
	for _, g := range s.grants {
		if g.Kind == k {
			return true
		}
	}
	return false
}

func (s Set) allowsNetwork(ask NetworkRule) bool {
	host := firstHost(ask.AllowHosts)
	port := firstPort(ask.AllowPorts)

	for _, g := range s.grants {
		if g.Kind != KindNetworkConnect {
			continue
		}
		// Blocked-host lists override allowed-host lists (spec.md §4.4).
		if matchesHost(g.Network.BlockHosts, host) {
			return false
		}
	}
	for _, g := range s.grants {
		if g.Kind != KindNetworkConnect {
			continue
		}
		if matchesHost(g.Network.BlockHosts, host) {
			continue
		}
		if !matchesHost(g.Network.AllowHosts, host) {
			continue
		}
		if !matchesPort(g.Network.AllowPorts, port) {
			continue
		}
		if ask.RequireTLS && !g.Network.RequireTLS {
			continue
		}
		return true
	}
	return false
}

func firstPattern(patterns []string) string {
	if len(patterns) == 0 {
		return ""
	}
	return patterns[0]
}

func firstHost(hosts []string) string {
	if len(hosts) == 0 {
		return ""
	}
	return hosts[0]
}

func firstPort(ports []int) int {
	if len(ports) == 0 {
		return 0
	}
	return ports[0]
}
