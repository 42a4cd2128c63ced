package core

import (
	"context"
	"testing"
)

func TestDispatch_Query(t *testing.T) {
	d := QueryDispatch([]string{"/a", "/b"})
	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}
	if d.Kind() != KindQuery {
		t.Errorf("expected query kind, got %s", d.Kind())
	}
	e := d.Entry(1)
	if e.Kind != KindQuery || e.Value != "/b" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestDispatch_Payload(t *testing.T) {
	d := PayloadDispatch([]string{`{"id":1}`})
	if d.Kind() != KindPayload {
		t.Errorf("expected payload kind, got %s", d.Kind())
	}
	if got := d.Entry(0).Value; got != `{"id":1}` {
		t.Errorf("unexpected body %q", got)
	}
}

func TestDispatch_ZeroValueIsEmpty(t *testing.T) {
	var d Dispatch
	if d.Len() != 0 {
		t.Errorf("expected empty dispatch, got %d", d.Len())
	}
}

func TestStaticToken(t *testing.T) {
	var src TokenSource = StaticToken("abc")
	if got := src.Bearer(context.Background()); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestContextWithWorkerID(t *testing.T) {
	ctx := context.Background()
	if id := WorkerIDFromContext(ctx); id != 0 {
		t.Errorf("expected 0, got %d", id)
	}
	ctx = ContextWithWorkerID(ctx, 7)
	if id := WorkerIDFromContext(ctx); id != 7 {
		t.Errorf("expected 7, got %d", id)
	}
}

type countingReporter struct{ n int }

func (c *countingReporter) Report(Result) { c.n++ }

func TestReporters_FanOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	rs := Reporters{a, b}
	rs.Report(Result{StatusCode: 200})
	rs.Report(Result{StatusCode: 500})

	if a.n != 2 || b.n != 2 {
		t.Errorf("expected both reporters to see 2 results, got %d and %d", a.n, b.n)
	}
}
