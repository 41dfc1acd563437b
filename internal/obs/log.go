package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide JSON-line logger.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetOutput redirects log output; tests capture lines this way.
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}

// Emit writes one JSON line of the given type, stamping ts. The caller owns
// the remaining fields; a field named ts or type wins over the stamp.
func Emit(kind string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["type"] = kind
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"type":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogRequest emits one http line per served request.
func LogRequest(fields map[string]any) {
	Emit("http", fields)
}
