package readiness

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// Stability 운영 로그 스캔 결과
type Stability struct {
	Known      bool   `json:"known"`
	Reason     string `json:"reason,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
	FatalCount int    `json:"fatal_count"`
}

var fatalMarkers = [][]byte{
	[]byte(`"level":"fatal"`),
	[]byte(`"level":"panic"`),
}

// ScanOperationalLog counts fatal zerolog entries in the log file.
// Files larger than scanLimit bytes are reported by size without a scan.
func ScanOperationalLog(path string, scanLimit int64) Stability {
	if path == "" {
		return Stability{Reason: "no log file configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Stability{Reason: err.Error()}
	}
	st := Stability{Known: true, SizeBytes: info.Size()}
	if scanLimit > 0 && info.Size() > scanLimit {
		return st
	}

	f, err := os.Open(path)
	if err != nil {
		return Stability{Reason: err.Error()}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		for _, m := range fatalMarkers {
			if bytes.Contains(line, m) {
				st.FatalCount++
				break
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Stability{Reason: fmt.Sprintf("scan %s: %v", path, err)}
	}
	return st
}
