package mesh

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	selfInfoMinLen       = 58
	selfInfoKeyOffset    = 4
	selfInfoNameOffset   = 58
	selfInfoPublicKeyLen = 32
)

// SelfInfo is the device identity block returned in reply to AppStart.
type SelfInfo struct {
	PublicKey string
	Name      string
}

// DecodeSelfInfo extracts the public key and device name from a SelfInfo
// response payload. The remaining fixed fields are ignored.
func DecodeSelfInfo(payload []byte) (SelfInfo, error) {
	if len(payload) < selfInfoMinLen {
		return SelfInfo{}, fmt.Errorf("self info too short: %d", len(payload))
	}

	key := payload[selfInfoKeyOffset : selfInfoKeyOffset+selfInfoPublicKeyLen]

	name := payload[selfInfoNameOffset:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return SelfInfo{
		PublicKey: hex.EncodeToString(key),
		Name:      string(name),
	}, nil
}
