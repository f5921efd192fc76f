// Package engine selects the backend that services a request.
package engine

// Selection is the backend chosen for a request.
type Selection int

const (
	Unavailable Selection = iota
	UserKey
	CloudProxy
	OnDevice
)

func (s Selection) String() string {
	switch s {
	case UserKey:
		return "user-key"
	case CloudProxy:
		return "cloud-proxy"
	case OnDevice:
		return "on-device"
	default:
		return "unavailable"
	}
}

// Inputs are the facts routing depends on.
type Inputs struct {
	HasUserKey    bool
	Authenticated bool
	ForcedOffline bool
	Entitled      bool // pro plan or active trial
}

// Route picks a backend. Precedence: a user key wins outright, then
// authentication is required, then the offline override, then entitlement.
func Route(in Inputs) Selection {
	switch {
	case in.HasUserKey:
		return UserKey
	case !in.Authenticated:
		return Unavailable
	case in.ForcedOffline:
		return OnDevice
	case in.Entitled:
		return CloudProxy
	default:
		return OnDevice
	}
}
