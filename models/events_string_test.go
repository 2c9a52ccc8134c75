package models

import (
	"fmt"
	"testing"

	"github.com/carlmjohnson/be"
)

func TestStringerForEvents(t *testing.T) {
	t.Run("TestAccessorInitializedEvent", func(t *testing.T) {
		e := AccessorInitializedEvent{Name: "a"}
		be.Equal(t, "INITIALIZED", fmt.Sprintf("%s", e)) //nolint
	})
	t.Run("TestOutputSentEvent", func(t *testing.T) {
		e := OutputSentEvent{Port: "out"}
		be.Equal(t, "OUTPUT", fmt.Sprintf("%s", e)) //nolint
	})
	t.Run("TestEventSubject", func(t *testing.T) {
		be.Equal(t, "$ACCESSOR.events.host1.ERROR", EventSubject("host1", AccessorErrorEvent{}.String()))
	})
}
