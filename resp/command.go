package resp

import "strconv"

// AppendCommand appends args to dst encoded as an array of bulk strings, the
// form Redis expects commands in.
func AppendCommand(dst []byte, args ...string) []byte {
	dst = append(dst, Array)
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range args {
		dst = append(dst, BulkString)
		dst = strconv.AppendInt(dst, int64(len(arg)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, arg...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// Subscribe returns the SUBSCRIBE command for a single channel.
func Subscribe(channel string) []byte {
	return AppendCommand(make([]byte, 0, 32+len(channel)), "SUBSCRIBE", channel)
}
