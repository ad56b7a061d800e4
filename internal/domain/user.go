package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func ParseUserID(raw string) (UserID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse user id %q: %w", raw, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("user id must be positive, got %d", value)
	}
	return UserID(value), nil
}

// DeviceType mirrors the gateway's device enum. Logging in twice with the
// same device type is what provokes a kick.
type DeviceType uint32

const (
	DeviceUnknown DeviceType = 0
	DeviceMobile  DeviceType = 1
	DevicePC      DeviceType = 2
	DeviceWeb     DeviceType = 3
)

func (d DeviceType) String() string {
	switch d {
	case DeviceMobile:
		return "mobile"
	case DevicePC:
		return "pc"
	case DeviceWeb:
		return "web"
	default:
		return fmt.Sprintf("device(%d)", uint32(d))
	}
}

func ParseDeviceType(raw string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mobile", "1":
		return DeviceMobile, nil
	case "pc", "2":
		return DevicePC, nil
	case "web", "3", "":
		return DeviceWeb, nil
	default:
		return DeviceUnknown, fmt.Errorf("unsupported device type %q", raw)
	}
}

type Credentials struct {
	UserID     UserID
	Password   string
	DeviceID   string
	DeviceType DeviceType
}

// UserRange is a contiguous block of simulated user ids.
type UserRange struct {
	Start UserID
	Count int
}

func (r UserRange) Validate() error {
	if r.Start <= 0 {
		return fmt.Errorf("%w: start must be positive", ErrInvalidUserRange)
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidUserRange)
	}
	return nil
}

func (r UserRange) IDs() []UserID {
	ids := make([]UserID, 0, r.Count)
	for i := 0; i < r.Count; i++ {
		ids = append(ids, r.Start+UserID(i))
	}
	return ids
}
