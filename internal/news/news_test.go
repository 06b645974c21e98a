package news

import (
	"errors"
	"fmt"
	"testing"
)

func TestSummarizeLedger(t *testing.T) {
	records := map[string]LedgerRecord{
		"u1": {Title: "a", PublishMessageID: MessageID(1)},
		"u2": {Title: "b", Skipped: true},
		"u3": {Title: "c"},
		"u4": {Title: "d", PublishMessageID: MessageID(7)},
	}

	got := SummarizeLedger(records)
	want := LedgerTotals{Total: 4, Published: 2, Skipped: 1}
	if got != want {
		t.Errorf("SummarizeLedger() = %+v, want %+v", got, want)
	}

	if empty := SummarizeLedger(nil); empty != (LedgerTotals{}) {
		t.Errorf("SummarizeLedger(nil) = %+v, want zero", empty)
	}
}

func TestErrorClasses(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		is   error
		kind string
	}{
		{name: "transient", err: Transient(base), is: ErrTransient, kind: "transport"},
		{name: "wrapped transient", err: fmt.Errorf("fetch: %w", Transient(base)), is: ErrTransient, kind: "transport"},
		{name: "malformed", err: Malformed("missing %s", "title"), is: ErrMalformedResponse, kind: "malformed"},
		{name: "corrupt", err: CorruptState(base), is: ErrCorruptState, kind: "corrupt_state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.is) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.is)
			}
			if got := Kind(tt.err); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
		})
	}

	if !errors.Is(Transient(base), base) {
		t.Error("Transient() must keep the cause reachable")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) must be nil")
	}
	if Kind(base) != "unknown" {
		t.Errorf("Kind(plain) = %q, want unknown", Kind(base))
	}
}
