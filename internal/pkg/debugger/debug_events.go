package debugger

import (
	"bytes"
	"encoding/json"

	"go.uber.org/zap"
)

// DebugPrintEvents logs raw processor event payloads. Only called when the
// logger runs at debug level; webhook bodies can carry customer references
// that have no place in production logs.
func DebugPrintEvents(logger *zap.SugaredLogger, eventData []byte) {
	logger.Infow("Debug event data", "event", string(eventData))

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, eventData, "", "  "); err == nil {
		logger.Infow("Debug pretty-printed event JSON", "event", prettyJSON.String())
	} else {
		logger.Warnw("Failed to pretty-print event as JSON", zap.Error(err))
	}
}
