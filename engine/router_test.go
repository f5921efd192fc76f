package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want Selection
	}{
		{"not signed in", Inputs{}, Unavailable},
		{"not signed in but entitled", Inputs{Entitled: true, ForcedOffline: true}, Unavailable},
		{"signed in free", Inputs{Authenticated: true}, OnDevice},
		{"signed in entitled", Inputs{Authenticated: true, Entitled: true}, CloudProxy},
		{"offline override beats entitlement", Inputs{Authenticated: true, ForcedOffline: true, Entitled: true}, OnDevice},
		{"offline override free", Inputs{Authenticated: true, ForcedOffline: true}, OnDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.in))
		})
	}
}

// Exhaustive over the input space: the user key overrides every other input.
func TestRouteUserKeyAlwaysWins(t *testing.T) {
	for mask := range 8 {
		in := Inputs{
			HasUserKey:    true,
			Authenticated: mask&1 != 0,
			ForcedOffline: mask&2 != 0,
			Entitled:      mask&4 != 0,
		}
		assert.Equal(t, UserKey, Route(in), "%+v", in)
	}
}

func TestRouteTotal(t *testing.T) {
	for mask := range 16 {
		in := Inputs{
			HasUserKey:    mask&1 != 0,
			Authenticated: mask&2 != 0,
			ForcedOffline: mask&4 != 0,
			Entitled:      mask&8 != 0,
		}
		got := Route(in)
		assert.Contains(t, []Selection{UserKey, CloudProxy, OnDevice, Unavailable}, got)
		assert.Equal(t, got, Route(in), "route must be deterministic")
		if !in.HasUserKey && !in.Authenticated {
			assert.Equal(t, Unavailable, got)
		}
	}
}

func TestSelectionString(t *testing.T) {
	assert.Equal(t, "user-key", UserKey.String())
	assert.Equal(t, "cloud-proxy", CloudProxy.String())
	assert.Equal(t, "on-device", OnDevice.String())
	assert.Equal(t, "unavailable", Unavailable.String())
}
