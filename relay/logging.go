package relay

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// normalErrSubstrings are error messages that indicate an ordinary peer
// disconnect or a closed-listener race rather than a real fault. Logged at
// Debug instead of Error. Grounded on proxy/helper.go's logErr table.
var normalErrSubstrings = []string{
	"read: connection reset by peer",
	"write: broken pipe",
	"i/o timeout",
	"use of closed network connection",
	"connection reset by peer",
	"broken pipe",
}

// logConnErr logs err at a severity that separates ordinary peer
// disconnects (observed as io.ErrUnexpectedEOF, io.EOF, or one of the
// substrings above) at Debug, everything else at Error. This distinction
// matters because clients routinely abandon idle upgrades, and treating
// that as a server fault would drown real errors in noise.
func logConnErr(logger *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		logger.Debug(msg, "error", err)
		return
	}
	text := err.Error()
	for _, substr := range normalErrSubstrings {
		if strings.Contains(text, substr) {
			logger.Debug(msg, "error", err)
			return
		}
	}
	logger.Error(msg, "error", err)
}
