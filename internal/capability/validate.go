package capability

// Validate checks spec.md §3's invariants for a single capability: path
// patterns must be non-empty and free of "..", and a NetworkConnect rule
// must list at least one port whenever it lists any hosts.
func Validate(c Capability) error {
	switch c.Kind {
	case KindFilesystemRead, KindFilesystemWrite:
		if len(c.PathPatterns) == 0 {
			return &InvalidCapabilityError{Reason: "path capability requires at least one pattern"}
		}
		for _, p := range c.PathPatterns {
			if _, err := compilePathGlob(p); err != nil {
				return err
			}
		}
	case KindNetworkConnect:
		hostCount := len(c.Network.AllowHosts) + len(c.Network.BlockHosts)
		if hostCount > 0 && len(c.Network.AllowPorts) == 0 {
			return &InvalidCapabilityError{Reason: "network rule lists hosts but no ports"}
		}
	case KindEnvironmentRead:
		if len(c.NamePatterns) == 0 {
			return &InvalidCapabilityError{Reason: "environment-read capability requires at least one name pattern"}
		}
	case KindHostFunction:
		if c.FunctionName == "" {
			return &InvalidCapabilityError{Reason: "host-function capability requires a name"}
		}
	}
	return nil
}

// ValidateSet validates every capability in a Set and checks for
// contradictions: two NetworkConnect grants for the same host pattern with
// conflicting RequireTLS settings are rejected, since that leaves the
// effective policy ambiguous rather than purely additive.
func ValidateSet(s Set) error {
	for _, c := range s.grants {
		if err := Validate(c); err != nil {
			return err
		}
	}

	tlsByHost := map[string]bool{}
	seen := map[string]bool{}
	for _, c := range s.grants {
		if c.Kind != KindNetworkConnect {
			continue
		}
		for _, h := range c.Network.AllowHosts {
			if seen[h] && tlsByHost[h] != c.Network.RequireTLS {
				return &InvalidCapabilityError{Reason: "conflicting require-tls settings for host " + h}
			}
			seen[h] = true
			tlsByHost[h] = c.Network.RequireTLS
		}
	}
	return nil
}
