package capability

import "testing"

func TestStrictDeniesEverything(t *testing.T) {
	s, err := NewSet(Strict)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	allowed, err := s.Allows(Clock())
	if err != nil {
		t.Fatalf("Allows: %v", err)
	}
	if allowed {
		t.Fatal("strict policy must deny Clock")
	}
}

func TestModerateAllowsClockAndRandomOnly(t *testing.T) {
	s, err := NewSet(Moderate)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	for _, c := range []Capability{Clock(), Random()} {
		allowed, err := s.Allows(c)
		if err != nil {
			t.Fatalf("Allows: %v", err)
		}
		if !allowed {
			t.Fatalf("moderate policy must allow %s", c.Kind)
		}
	}

	allowed, err := s.Allows(NetworkConnect(NetworkRule{AllowHosts: []string{"example.com"}, AllowPorts: []int{443}}))
	if err != nil {
		t.Fatalf("Allows: %v", err)
	}
	if allowed {
		t.Fatal("moderate policy must deny network by default")
	}
}

func TestAdditiveGrantExtendsStrict(t *testing.T) {
	s, err := NewSet(Strict, FilesystemRead("/data/**"))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	allowed, err := s.Allows(FilesystemRead("/data/config.json"))
	if err != nil {
		t.Fatalf("Allows: %v", err)
	}
	if !allowed {
		t.Fatal("expected /data/config.json to be allowed under /data/** grant")
	}

	allowed, err = s.Allows(FilesystemRead("/etc/passwd"))
	if err != nil {
		t.Fatalf("Allows: %v", err)
	}
	if allowed {
		t.Fatal("expected /etc/passwd to remain denied")
	}
}

func TestDotDotPathIsInvalid(t *testing.T) {
	_, err := NewSet(Strict, FilesystemRead("/data/../etc"))
	if err == nil {
		t.Fatal("expected error for path pattern containing '..'")
	}
}

func TestBlockedHostOverridesAllowed(t *testing.T) {
	s, err := NewSet(Strict, NetworkConnect(NetworkRule{
		AllowHosts: []string{".example.com"},
		BlockHosts: []string{"evil.example.com"},
		AllowPorts: []int{443},
	}))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	allowed, err := s.Allows(NetworkConnect(NetworkRule{AllowHosts: []string{"api.example.com"}, AllowPorts: []int{443}}))
	if err != nil || !allowed {
		t.Fatalf("expected api.example.com allowed, got allowed=%v err=%v", allowed, err)
	}

	allowed, err = s.Allows(NetworkConnect(NetworkRule{AllowHosts: []string{"evil.example.com"}, AllowPorts: []int{443}}))
	if err != nil {
		t.Fatalf("Allows: %v", err)
	}
	if allowed {
		t.Fatal("expected evil.example.com to be blocked")
	}
}

func TestNetworkRuleWithoutPortsIsInvalid(t *testing.T) {
	_, err := NewSet(Strict, NetworkConnect(NetworkRule{AllowHosts: []string{"example.com"}}))
	if err == nil {
		t.Fatal("expected error: hosts without ports")
	}
}

func TestTrustedAllowsFilesystemNetworkAndEnv(t *testing.T) {
	s, err := NewSet(Trusted)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	cases := []Capability{
		FilesystemRead("/anything"),
		FilesystemWrite("/anything"),
		EnvironmentRead("ANY_VAR"),
		NetworkConnect(NetworkRule{AllowHosts: []string{"anywhere.example"}, AllowPorts: []int{9999}}),
	}
	for _, c := range cases {
		allowed, err := s.Allows(c)
		if err != nil {
			t.Fatalf("Allows(%s): %v", c.Kind, err)
		}
		if !allowed {
			t.Fatalf("trusted policy must allow %s", c.Kind)
		}
	}
}
