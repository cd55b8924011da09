package broadcast

import "fmt"

// PaddingComment is the large buffering-defeating comment written at
// attach time (spec.md §4.3 "Attach-time replay"), sized close to 2 KiB.
var PaddingComment = func() []byte {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = ' '
	}
	return FormatComment(string(body))
}()

// FormatNamedEvent renders an SSE "event: <name>\ndata: <json>\n\n" frame.
func FormatNamedEvent(name string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

// FormatData renders an unnamed SSE "data: <json>\n\n" frame.
func FormatData(data []byte) []byte {
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

// FormatComment renders an SSE comment frame, used for liveness pings and
// the attach-time padding/ready comments.
func FormatComment(text string) []byte {
	return []byte(fmt.Sprintf(": %s\n\n", text))
}
