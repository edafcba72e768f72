package models

// ConnectionStatus is the three-valued connectivity tag exposed to readers.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusLive         ConnectionStatus = "LIVE"
	StatusOffline      ConnectionStatus = "OFFLINE"
)

// AllStatuses lists every tag in declaration order.
var AllStatuses = []ConnectionStatus{StatusDisconnected, StatusLive, StatusOffline}

func (s ConnectionStatus) String() string { return string(s) }

// Valid reports whether s is one of the known tags.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusLive, StatusOffline:
		return true
	}
	return false
}
