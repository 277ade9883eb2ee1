package indicator

import "github.com/rbright/navieyes/internal/media"

type messages struct {
	photo      string
	recording  string
	processing string
	done       string
	errorText  string
}

func defaultMessages() messages {
	return messages{
		photo:      "Taking photo…",
		recording:  "Listening…",
		processing: "Asking navieyes…",
		done:       "Answer ready",
		errorText:  "Something went wrong",
	}
}

func (m messages) capturing(kind media.Kind) string {
	if kind == media.AudioClip {
		return m.recording
	}
	return m.photo
}
