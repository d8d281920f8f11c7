package mesh

import (
	"encoding/binary"
	"encoding/hex"
)

// Push is a decoded push notification. For a known code with a long enough
// payload the matching field is set (Waiting for MsgWaiting); unknown codes
// and short payloads carry the opaque payload only.
type Push struct {
	Code    byte
	Raw     []byte
	Advert  *AdvertData
	Path    *AdvertData
	Confirm *SendConfirmedData
	Waiting bool
	RawRx   *RawRxData
	LogRx   *LogRxData
}

// AdvertData is the decoded body of Advert and PathUpdated pushes.
type AdvertData struct {
	PublicKey string
}

// SendConfirmedData carries the delivery receipt of a sent message.
type SendConfirmedData struct {
	AckCode     uint32
	RoundTripMS uint32
}

// RawRxData is a raw custom-packet reception report.
type RawRxData struct {
	SNR  float64
	RSSI int
	Data []byte
}

// LogRxData is a packet-logging record with radio metrics.
type LogRxData struct {
	SNR  float64
	RSSI int
	Raw  []byte
}

// DecodePush decodes a push payload best-effort. Payloads too short for
// their code, and unknown codes, come back with only Code and Raw set.
func DecodePush(payload []byte) Push {
	p := Push{Code: payload[0], Raw: payload}

	switch p.Code {
	case PushAdvert:
		if len(payload) >= 33 {
			p.Advert = &AdvertData{PublicKey: hex.EncodeToString(payload[1:33])}
		}
	case PushPathUpdated:
		if len(payload) >= 33 {
			p.Path = &AdvertData{PublicKey: hex.EncodeToString(payload[1:33])}
		}
	case PushSendConfirmed:
		if len(payload) >= 9 {
			p.Confirm = &SendConfirmedData{
				AckCode:     binary.LittleEndian.Uint32(payload[1:5]),
				RoundTripMS: binary.LittleEndian.Uint32(payload[5:9]),
			}
		}
	case PushMsgWaiting:
		p.Waiting = true
	case PushRawData:
		if len(payload) >= 4 {
			p.RawRx = &RawRxData{
				SNR:  float64(int8(payload[1])) / 4,
				RSSI: int(int8(payload[2])),
				Data: payload[4:],
			}
		}
	case PushLogRxData:
		if len(payload) >= 3 {
			p.LogRx = &LogRxData{
				SNR:  float64(int8(payload[1])) / 4,
				RSSI: int(int8(payload[2])),
				Raw:  payload[3:],
			}
		}
	}

	return p
}
