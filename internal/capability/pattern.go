package capability

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// InvalidCapabilityError reports a capability whose patterns violate
// spec.md §3's validation rule (non-empty, no ".." segment, ports required
// when hosts are non-empty).
type InvalidCapabilityError struct {
	Reason string
}

func (e *InvalidCapabilityError) Error() string {
	return fmt.Sprintf("invalid capability: %s", e.Reason)
}

// compilePathGlob compiles a canonicalized path pattern with "/" as the
// separator so "*" matches one path component and "**" matches any prefix,
// per spec.md §4.4.
func compilePathGlob(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, &InvalidCapabilityError{Reason: "empty path pattern"}
	}
	for _, seg := range strings.Split(pattern, "/") {
		if seg == ".." {
			return nil, &InvalidCapabilityError{Reason: fmt.Sprintf("path pattern %q contains '..'", pattern)}
		}
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &InvalidCapabilityError{Reason: fmt.Sprintf("path pattern %q: %v", pattern, err)}
	}
	return g, nil
}

// matchesAnyPath compiles each pattern and reports whether any of them
// matches path.
func matchesAnyPath(patterns []string, path string) (bool, error) {
	for _, p := range patterns {
		g, err := compilePathGlob(p)
		if err != nil {
			return false, err
		}
		if g.Match(path) {
			return true, nil
		}
	}
	return false, nil
}

// matchesHost implements spec.md §4.4's host matching: exact hostname, or a
// ".example.com" suffix pattern matching any subdomain. Blocked hosts are
// checked by the caller first and short-circuit to deny.
func matchesHost(patterns []string, host string) bool {
	for _, p := range patterns {
		if p == "**" {
			return true
		}
		if p == host {
			return true
		}
		if strings.HasPrefix(p, ".") && strings.HasSuffix(host, p) {
			return true
		}
	}
	return false
}

// AnyPort is a sentinel AllowPorts entry meaning "every port", used by the
// Trusted base policy. A concrete grant built by a caller should list real
// port numbers instead.
const AnyPort = -1

func matchesPort(allowed []int, port int) bool {
	if len(allowed) == 0 {
		// An empty allow-list with non-empty hosts is rejected at
		// validation time; reaching here with no hosts means "no network
		// rule applies", which is never matched.
		return false
	}
	for _, p := range allowed {
		if p == AnyPort || p == port {
			return true
		}
	}
	return false
}
