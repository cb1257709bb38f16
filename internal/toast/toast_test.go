package toast

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

type apiErr struct{ msg string }

func (e apiErr) Error() string       { return "api: " + e.msg }
func (e apiErr) UserMessage() string { return e.msg }

func TestFromError(t *testing.T) {
	got := FromError(apiErr{msg: "Client not found"}, "Something went wrong")
	if got.Kind != KindError || got.Message != "Client not found" {
		t.Fatalf("expected server message, got %+v", got)
	}
	got = FromError(errors.New("dial tcp: refused"), "Network error")
	if got.Message != "Network error" {
		t.Fatalf("expected fallback, got %+v", got)
	}
	got = FromError(errors.New("the uploaded file is empty"), "")
	if got.Message != "The uploaded file is empty" {
		t.Fatalf("expected capitalized error, got %q", got.Message)
	}
	if got.AutoHide != 3*time.Second {
		t.Fatalf("toasts auto-hide after 3s")
	}
}

func TestRedirectRoundTrip(t *testing.T) {
	target := Redirect("/clients?page=2", Error("Name is required"))
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := FromQuery(u.Query())
	if !ok || got.Kind != KindError || got.Message != "Name is required" {
		t.Fatalf("unexpected toast %+v", got)
	}
	if u.Query().Get("page") != "2" {
		t.Fatalf("existing query lost: %s", target)
	}
	if _, ok := FromQuery(url.Values{}); ok {
		t.Fatalf("empty query should carry no toast")
	}
}

func TestRemainingLabel(t *testing.T) {
	cases := map[float64]string{
		0.4:   "Almost done...",
		12.2:  "13 sec remaining",
		59.0:  "59 sec remaining",
		125.5: "2m 6s remaining",
	}
	for in, want := range cases {
		if got := RemainingLabel(in); got != want {
			t.Fatalf("RemainingLabel(%v) = %q want %q", in, got, want)
		}
	}
}

func TestMeasure(t *testing.T) {
	p := Measure("Uploading", 512*1024, 1024*1024, 2*time.Second)
	if p.Percent != 50 || p.SentKB != "512.0 KB" || p.TotalKB != "1024.0 KB" {
		t.Fatalf("unexpected progress %+v", p)
	}
	if p.Remaining != "2 sec remaining" || p.Done {
		t.Fatalf("unexpected remaining %+v", p)
	}
	if !Measure("Uploading", 0, 0, 0).Indeterminate() {
		t.Fatalf("unknown total should be indeterminate")
	}
	if !Measure("Uploading", 10, 10, time.Second).Done {
		t.Fatalf("complete upload should be done")
	}
}
