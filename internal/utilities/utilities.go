package utilities

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// CreateLog appends a line to the component's hourly capture file under dir:
// <dir>/<component>/YYYY-MM-DD_HH.txt. Operator-facing forensics, not a
// protocol surface; failures are logged and swallowed.
func CreateLog(dir, component, message string) {
	now := time.Now().UTC()
	sub := filepath.Join(dir, component)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		log.Println("capture log mkdir:", err)
		return
	}
	filename := filepath.Join(sub, now.Format("2006-01-02_15")+".txt")

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Println("capture log open:", err)
		return
	}
	defer f.Close()

	line := now.Format("15:04:05") + " - " + message + "\n"
	if _, err := f.WriteString(line); err != nil {
		log.Println("capture log write:", err)
	}
}
