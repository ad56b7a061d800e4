package domain

type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusHandshaking Status = "handshaking"
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusKicked      Status = "kicked"
)

var AllStatuses = []Status{
	StatusIdle,
	StatusConnecting,
	StatusHandshaking,
	StatusOnline,
	StatusOffline,
	StatusKicked,
}

// Terminal reports whether the status ends the lifetime of a transport.
func (s Status) Terminal() bool {
	return s == StatusOffline || s == StatusKicked
}
