package runtime

import "fmt"

// Registry holds the set of available backends and selects among them.
// Grounded on spec.md §4.2's selection rule: highest weighted score wins,
// ties broken by registration order.
type Registry struct {
	order []string
	byName map[string]Runtime
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Runtime)}
}

// Register adds a backend under its Name(). Registration order matters for
// tie-breaking in Select.
func (r *Registry) Register(rt Runtime) {
	name := rt.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = rt
}

// Get returns the backend registered under name, if any.
func (r *Registry) Get(name string) (Runtime, bool) {
	rt, ok := r.byName[name]
	return rt, ok
}

// Names returns the registered backend names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Select computes a weighted compatibility score for every registered
// backend against reqs and returns the highest scorer. A backend that fails
// to satisfy any RequiredFeatures or RequiredSecurityFeatures entry scores
// -1 and is never selected. Ties are broken by registration order.
func (r *Registry) Select(reqs Requirements) (Runtime, error) {
	if len(r.order) == 0 {
		return nil, fmt.Errorf("runtime: no backends registered")
	}

	var best Runtime
	bestScore := -1

	for _, name := range r.order {
		rt := r.byName[name]
		score := score(rt.SnapshotCapabilities(), reqs)
		if score < 0 {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = rt
		}
	}

	if best == nil {
		return nil, fmt.Errorf("runtime: no backend satisfies required features %v / %v", reqs.RequiredFeatures, reqs.RequiredSecurityFeatures)
	}
	return best, nil
}

func score(caps Capabilities, reqs Requirements) int {
	have := featureSet(caps)

	total := 0
	for _, f := range reqs.RequiredFeatures {
		if !have[f] {
			return -1
		}
		total++
	}
	for _, f := range reqs.RequiredSecurityFeatures {
		if !have[f] {
			return -1
		}
		total++
	}
	for _, f := range reqs.RequiredDebugging {
		// Debugging requirements are advisory: they contribute to score
		// but never disqualify a backend outright.
		if have[f] {
			total++
		}
	}
	return total
}

func featureSet(caps Capabilities) map[string]bool {
	set := map[string]bool{}
	if caps.BulkMemory {
		set["bulk-memory"] = true
	}
	if caps.SIMD {
		set["simd"] = true
	}
	if caps.Threads {
		set["threads"] = true
	}
	if caps.FuelMetering {
		set["fuel-metering"] = true
	}
	if caps.EpochInterruption {
		set["epoch-interruption"] = true
	}
	if caps.NativeMemoryLimits {
		set["native-memory-limits"] = true
	}
	if caps.SafeUnwindOnTimeout {
		set["safe-unwind-on-timeout"] = true
	}
	for _, f := range caps.SupportedFormats {
		set["format:"+f] = true
	}
	return set
}
