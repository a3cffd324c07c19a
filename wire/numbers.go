package wire

// SSH message numbers (RFC 4250 §4.1.2), restricted to the subset this
// stack speaks.
const (
	NumDisconnect              uint8 = 1
	NumIgnore                  uint8 = 2
	NumUnimplemented           uint8 = 3
	NumDebug                   uint8 = 4
	NumServiceRequest          uint8 = 5
	NumServiceAccept           uint8 = 6
	NumKexInit                 uint8 = 20
	NumNewKeys                 uint8 = 21
	NumKexEcdhInit             uint8 = 30
	NumKexEcdhReply            uint8 = 31
	NumUserauthRequest         uint8 = 50
	NumUserauthFailure         uint8 = 51
	NumUserauthSuccess         uint8 = 52
	NumUserauthBanner          uint8 = 53
	NumUserauthPkOk            uint8 = 60
	NumGlobalRequest           uint8 = 80
	NumRequestSuccess          uint8 = 81
	NumRequestFailure          uint8 = 82
	NumChannelOpen             uint8 = 90
	NumChannelOpenConfirmation uint8 = 91
	NumChannelOpenFailure      uint8 = 92
	NumChannelWindowAdjust     uint8 = 93
	NumChannelData             uint8 = 94
	NumChannelExtendedData     uint8 = 95
	NumChannelEof              uint8 = 96
	NumChannelClose            uint8 = 97
	NumChannelRequest          uint8 = 98
	NumChannelSuccess          uint8 = 99
	NumChannelFailure          uint8 = 100
)

// MessageName returns a human-readable name for a message number.
func MessageName(n uint8) string {
	switch n {
	case NumDisconnect:
		return "DISCONNECT"
	case NumIgnore:
		return "IGNORE"
	case NumUnimplemented:
		return "UNIMPLEMENTED"
	case NumDebug:
		return "DEBUG"
	case NumServiceRequest:
		return "SERVICE_REQUEST"
	case NumServiceAccept:
		return "SERVICE_ACCEPT"
	case NumKexInit:
		return "KEXINIT"
	case NumNewKeys:
		return "NEWKEYS"
	case NumKexEcdhInit:
		return "KEX_ECDH_INIT"
	case NumKexEcdhReply:
		return "KEX_ECDH_REPLY"
	case NumUserauthRequest:
		return "USERAUTH_REQUEST"
	case NumUserauthFailure:
		return "USERAUTH_FAILURE"
	case NumUserauthSuccess:
		return "USERAUTH_SUCCESS"
	case NumUserauthBanner:
		return "USERAUTH_BANNER"
	case NumUserauthPkOk:
		return "USERAUTH_PK_OK"
	case NumGlobalRequest:
		return "GLOBAL_REQUEST"
	case NumRequestSuccess:
		return "REQUEST_SUCCESS"
	case NumRequestFailure:
		return "REQUEST_FAILURE"
	case NumChannelOpen:
		return "CHANNEL_OPEN"
	case NumChannelOpenConfirmation:
		return "CHANNEL_OPEN_CONFIRMATION"
	case NumChannelOpenFailure:
		return "CHANNEL_OPEN_FAILURE"
	case NumChannelWindowAdjust:
		return "CHANNEL_WINDOW_ADJUST"
	case NumChannelData:
		return "CHANNEL_DATA"
	case NumChannelExtendedData:
		return "CHANNEL_EXTENDED_DATA"
	case NumChannelEof:
		return "CHANNEL_EOF"
	case NumChannelClose:
		return "CHANNEL_CLOSE"
	case NumChannelRequest:
		return "CHANNEL_REQUEST"
	case NumChannelSuccess:
		return "CHANNEL_SUCCESS"
	case NumChannelFailure:
		return "CHANNEL_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// IsKexMessage reports whether a message number belongs to the key
// exchange (legal inside the critical window).
func IsKexMessage(n uint8) bool {
	return n == NumKexInit || n == NumNewKeys || (n >= 30 && n <= 49)
}

// IsTransportMessage reports whether a message number is handled by the
// transport layer itself.
func IsTransportMessage(n uint8) bool {
	return n <= 49
}
