package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestBaseURLFromAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		":8080":          "http://127.0.0.1:8080",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		"10.0.0.5:8080":  "http://10.0.0.5:8080",
		"not an address": "http://127.0.0.1:8080",
	}
	for in, want := range cases {
		if got := baseURLFromAddr(in); got != want {
			t.Fatalf("baseURLFromAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFollowPrintsCardAndEnds(t *testing.T) {
	t.Parallel()

	sse := strings.Join([]string{
		`event: trigger`,
		`data: {"type":"trigger","trigger_id":"m1","record":{"id":"m1","kind":"trigger","text":"hi"}}`,
		``,
		`data: {"type":"card_updated","trigger_id":"m1","record":{"id":"c1","kind":"card","state":"open","regions":{"text":"Hel"}}}`,
		``,
		`data: {"type":"card_updated","trigger_id":"m1","record":{"id":"c1","kind":"card","state":"open","regions":{"text":"Hello"}}}`,
		``,
		`data: {"type":"card_closed","trigger_id":"m1","record":{"id":"c1","kind":"card","state":"closed","text":"Hello"}}`,
		``,
		`data: {"type":"reply_ended","trigger_id":"m1"}`,
		``,
	}, "\n")
	var out bytes.Buffer
	if err := follow(strings.NewReader(sse), "m1", &out); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if out.String() != "Hello\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestFollowReportsFailure(t *testing.T) {
	t.Parallel()

	sse := `data: {"type":"reply_ended","trigger_id":"m1","error":"provider down"}` + "\n\n"
	err := follow(strings.NewReader(sse), "m1", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "provider down") {
		t.Fatalf("expected reply failure, got %v", err)
	}
	if err := follow(strings.NewReader(""), "m1", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for truncated stream")
	}
}
