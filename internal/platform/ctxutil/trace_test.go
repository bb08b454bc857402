package ctxutil

import (
	"context"
	"testing"
)

func TestDetachKeepsValuesDropsCancel(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"}))
	detached := Detach(parent)
	cancel()

	if parent.Err() == nil {
		t.Fatalf("parent should be canceled")
	}
	if detached.Err() != nil {
		t.Fatalf("detached context should not be canceled: %v", detached.Err())
	}
	td := GetTraceData(detached)
	if td == nil || td.TraceID != "t1" {
		t.Fatalf("trace data lost: %+v", td)
	}
	fields := LogFields(detached)
	if len(fields) != 4 || fields[0] != "trace_id" || fields[3] != "r1" {
		t.Fatalf("LogFields: %v", fields)
	}
}

func TestGetTraceDataMissing(t *testing.T) {
	if GetTraceData(context.Background()) != nil {
		t.Fatalf("expected nil")
	}
	if LogFields(context.Background()) != nil {
		t.Fatalf("expected no fields")
	}
}
