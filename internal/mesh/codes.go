package mesh

// Host-to-radio command opcodes used by the bridge.
const (
	CmdAppStart          byte = 0x01
	CmdSendChannelTxtMsg byte = 0x03
)

// Radio-to-host response codes (solicited, < 0x80).
const (
	RespOk             byte = 0x00
	RespErr            byte = 0x01
	RespContactsStart  byte = 0x02
	RespContact        byte = 0x03
	RespEndOfContacts  byte = 0x04
	RespSelfInfo       byte = 0x05
	RespSent           byte = 0x06
	RespContactMsgRecv byte = 0x07
	RespChannelMsgRecv byte = 0x08
	RespCurrTime       byte = 0x09
	RespNoMoreMessages byte = 0x0A
	RespExportContact  byte = 0x0B
	RespBatteryVoltage byte = 0x0C
	RespDeviceInfo     byte = 0x0D
)

// Radio-to-host push codes (unsolicited, >= 0x80).
const (
	PushAdvert        byte = 0x80
	PushPathUpdated   byte = 0x81
	PushSendConfirmed byte = 0x82
	PushMsgWaiting    byte = 0x83
	PushRawData       byte = 0x84
	PushLogRxData     byte = 0x88
)

// IsPush reports whether a FromRadio payload code is an unsolicited push
// notification rather than a reply to the current command.
func IsPush(code byte) bool {
	return code >= 0x80
}

// streamingCodes is the set of response codes that may arrive as the first
// of several replies to one command. It is embedded policy, not
// protocol-discoverable; firmware additions go here.
var streamingCodes = map[byte]struct{}{
	RespContactsStart:  {},
	RespContact:        {},
	RespContactMsgRecv: {},
	RespChannelMsgRecv: {},
}

// IsStreaming reports whether a response code keeps the command queue lock
// held and only extends the in-flight deadline.
func IsStreaming(code byte) bool {
	_, ok := streamingCodes[code]
	return ok
}
