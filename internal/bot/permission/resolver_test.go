package permission

import "testing"

func TestResolve(t *testing.T) {
	r := NewResolver(
		[]string{"Gadmin"},
		[]string{"Gstaff", " Gdrivers "},
		[]string{"Uboss"},
	)

	tests := []struct {
		name     string
		senderID string
		groupID  string
		want     Tier
	}{
		{"admin group", "U1", "Gadmin", TierAdmin},
		{"employee group", "U1", "Gstaff", TierEmployee},
		{"trimmed employee group", "U1", "Gdrivers", TierEmployee},
		{"privileged sender direct", "Uboss", "", TierAdmin},
		{"privileged sender in public group", "Uboss", "Gother", TierAdmin},
		{"unknown group", "U1", "Gother", TierPublic},
		{"direct message from unknown sender", "U1", "", TierPublic},
		{"empty everything", "", "", TierPublic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.senderID, tt.groupID); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %v, want %v", tt.senderID, tt.groupID, got, tt.want)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver([]string{"G1"}, nil, nil)
	for i := 0; i < 100; i++ {
		if got := r.Resolve("U1", "G1"); got != TierAdmin {
			t.Fatalf("iteration %d: Resolve = %v, want admin", i, got)
		}
	}
}

func TestNilResolverFailsClosed(t *testing.T) {
	var r *Resolver
	if got := r.Resolve("U1", "Gadmin"); got != TierPublic {
		t.Errorf("nil resolver should return public, got %v", got)
	}
}

func TestTierAtLeast(t *testing.T) {
	tests := []struct {
		t, other Tier
		want     bool
	}{
		{TierAdmin, TierEmployee, true},
		{TierAdmin, TierAdmin, true},
		{TierEmployee, TierAdmin, false},
		{TierEmployee, TierPublic, true},
		{TierPublic, TierEmployee, false},
		{TierPublic, TierPublic, true},
	}
	for _, tt := range tests {
		if got := tt.t.AtLeast(tt.other); got != tt.want {
			t.Errorf("%v.AtLeast(%v) = %v, want %v", tt.t, tt.other, got, tt.want)
		}
	}
}
