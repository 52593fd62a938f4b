package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	defer func() {
		_ = Set(Output(os.Stderr))
		_ = Set(Level("warn"))
	}()

	log := New("fetch", Output(&buf), Level("debug"))
	log.Debug("requesting payload")

	got := buf.String()
	if !strings.Contains(got, "component=fetch") {
		t.Errorf("expected component field in %q", got)
	}
	if !strings.Contains(got, "requesting payload") {
		t.Errorf("expected message in %q", got)
	}
}

func TestLevelFallsBackToDebug(t *testing.T) {
	var buf bytes.Buffer
	defer func() {
		_ = Set(Output(os.Stderr))
		_ = Set(Level("warn"))
	}()
	_ = Set(Output(&buf))

	_ = Set(Level("chatty"))
	if root.logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", root.logger.GetLevel())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
}
