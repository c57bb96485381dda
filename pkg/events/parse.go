package events

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/near/borsh-go"
)

// Anchor-style event logs: "Program data: <base64>" where the payload is an
// 8-byte discriminator (sha256("event:<Name>")[:8]) followed by the
// borsh-encoded event body.
const programDataPrefix = "Program data: "

var (
	pixelChangedDiscriminator     = eventDiscriminator("PixelChanged")
	shardInitializedDiscriminator = eventDiscriminator("ShardInitialized")
)

func eventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// ParseLogs decodes the ordered log lines of one transaction into zero or
// more events. Unrecognized and malformed entries are skipped; a transaction
// that emitted nothing parseable yields an empty slice, not an error.
func ParseLogs(lines []string) []Event {
	var out []Event
	for _, line := range lines {
		rest, ok := strings.CutPrefix(line, programDataPrefix)
		if !ok {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(rest)
		if err != nil || len(payload) < 8 {
			continue
		}
		var disc [8]byte
		copy(disc[:], payload[:8])
		body := payload[8:]

		switch disc {
		case pixelChangedDiscriminator:
			var ev PixelChanged
			if err := borsh.Deserialize(&ev, body); err != nil {
				continue
			}
			out = append(out, ev)
		case shardInitializedDiscriminator:
			var ev ShardInitialized
			if err := borsh.Deserialize(&ev, body); err != nil {
				continue
			}
			out = append(out, ev)
		}
	}
	return out
}
