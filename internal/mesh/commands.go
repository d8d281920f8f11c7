package mesh

import "encoding/binary"

const appStartVersion = 1

// BuildAppStart encodes the session handshake command:
// [cmd][appVer][6 reserved bytes][appName].
func BuildAppStart(appName string) []byte {
	payload := make([]byte, 0, 8+len(appName))
	payload = append(payload, CmdAppStart, appStartVersion)
	payload = append(payload, make([]byte, 6)...)
	payload = append(payload, appName...)

	return payload
}

// BuildChannelText encodes a channel text message command:
// [cmd][txt_type=0][channel][timestamp:u32 LE][utf8 text].
func BuildChannelText(channel byte, timestamp uint32, text string) []byte {
	payload := make([]byte, 0, 7+len(text))
	payload = append(payload, CmdSendChannelTxtMsg, 0x00, channel)
	payload = binary.LittleEndian.AppendUint32(payload, timestamp)
	payload = append(payload, text...)

	return payload
}
