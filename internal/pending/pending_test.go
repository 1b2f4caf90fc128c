package pending

import "testing"

func TestResolveDeliversValueOnce(t *testing.T) {
	tbl := New()
	var got interface{}
	calls := 0
	tbl.Insert(1, Resolver{
		Resolve: func(data interface{}) { got = data; calls++ },
		Reject:  func(err error) { t.Errorf("unexpected reject: %v", err) },
	})

	tbl.Resolve(1, "value")
	tbl.Resolve(1, "value-again") // unknown by now, must be ignored

	if calls != 1 {
		t.Errorf("expected exactly one resolve call, got %d", calls)
	}
	if got != "value" {
		t.Errorf("expected %q, got %v", "value", got)
	}
	if tbl.Len() != 0 {
		t.Errorf("expected the entry to be removed after resolving, Len()=%d", tbl.Len())
	}
}

func TestRejectDeliversErrorOnce(t *testing.T) {
	tbl := New()
	var got error
	tbl.Insert("abc", Resolver{
		Resolve: func(data interface{}) { t.Errorf("unexpected resolve: %v", data) },
		Reject:  func(err error) { got = err },
	})

	sentinel := errTest("boom")
	tbl.Reject("abc", sentinel)

	if got != sentinel {
		t.Errorf("expected %v, got %v", sentinel, got)
	}
}

func TestResolveUnknownIDIsIgnored(t *testing.T) {
	tbl := New()
	tbl.Resolve("nope", 1) // must not panic
	if tbl.Len() != 0 {
		t.Errorf("expected empty table, got Len()=%d", tbl.Len())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
