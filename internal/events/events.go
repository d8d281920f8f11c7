// Package events defines the bus topics and payload types shared between
// the bridge core and its observers.
package events

import "time"

const (
	TopicConnStatus     = "conn.status"
	TopicDeviceIdentity = "device.identity"
	TopicPush           = "radio.push"
	TopicRawFrameIn     = "raw.frame.in"
	TopicRawFrameOut    = "raw.frame.out"
)

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnStatus is a bus event snapshot of the serial link status.
type ConnStatus struct {
	State     ConnectionState
	Err       string
	Port      string
	Timestamp time.Time
}

// DeviceIdentity is the cached identity of the attached radio, valid for
// one serial session.
type DeviceIdentity struct {
	PublicKey string
	Name      string
}

// RawFrame carries frame diagnostics for debug logging.
type RawFrame struct {
	Hex string
	Len int
}
