package push

import (
	"bufio"
	"strings"
)

// rawFrame is one SSE frame as delivered on the wire: an outer envelope
// carrying a channel name and a JSON-encoded data string, plus (for
// error frames) top-level fields instead of a data payload.
type rawFrame struct {
	id, event, data string
}

// readFrames scans r for blank-line-delimited SSE frames and calls emit
// for each one, until r returns an error (typically the connection
// closing) or ctx-driven cancellation elsewhere closes the reader.
func readFrames(r *bufio.Reader, emit func(rawFrame)) error {
	lines := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		switch {
		case trimmed == "":
			if len(lines) > 0 {
				emit(rawFrame{id: lines["id"], event: lines["event"], data: lines["data"]})
				lines = map[string]string{}
			}
		case strings.HasPrefix(trimmed, ":"):
			// comment line, ignored
		default:
			key, val, found := strings.Cut(trimmed, ":")
			if !found {
				lines[strings.TrimSpace(key)] = ""
			} else {
				lines[strings.TrimSpace(key)] = strings.TrimSpace(val)
			}
		}

		if err != nil {
			return err
		}
	}
}

// envelope is the JSON object carried in an SSE "message" frame's data
// field: it names the channel and timestamp, and nests the actual
// notification as a JSON string in Data.
type envelope struct {
	Channel   string `json:"channel"`
	Timestamp int64  `json:"timestamp"`
	Name      string `json:"name"`
	Data      string `json:"data"`
}

// notificationEnvelope is the decoded contents of envelope.Data.
type notificationEnvelope struct {
	Type              string `json:"type"`
	ChangeNumber      int64  `json:"changeNumber"`
	PreviousChangeNum int64  `json:"pcn"`
	SplitName         string `json:"splitName"`
	DefaultTreatment  string `json:"defaultTreatment"`
	SegmentName       string `json:"segmentName"`
	ControlType       string `json:"controlType"`
	Metrics           struct {
		Publishers int `json:"publishers"`
	} `json:"metrics"`
}

// errorEnvelope is the JSON object carried in an SSE "error" frame.
type errorEnvelope struct {
	Message    string `json:"message"`
	Code       int    `json:"code"`
	StatusCode int    `json:"statusCode"`
	Href       string `json:"href"`
}

const occupancyTag = "[meta]occupancy"
