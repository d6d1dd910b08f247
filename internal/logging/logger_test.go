package logging

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLineFormatter(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entry.Level = logrus.WarnLevel
	entry.Message = "subtasks unavailable"
	entry.Data = logrus.Fields{"task": 9}

	out, err := (&LineFormatter{SystemName: "pms-front"}).Format(entry)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	line := string(out)
	for _, want := range []string{
		"2024-01-02 03:04:05",
		"source=pms-front",
		"level=WARNING",
		`msg="subtasks unavailable"`,
		"task=9",
		"event=",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("line not newline terminated: %q", line)
	}
}
