package changes

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePayloadFoldsExtraFields(t *testing.T) {
	body := []byte(`{"key":"/foo/bar","schema":"foo","value":true,"signature":"b"}`)
	e, err := ParsePayload(nsSettings, body)
	if err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	if e.Namespace != nsSettings || e.Key != "/foo/bar" || string(e.Value) != "true" {
		t.Errorf("ParsePayload() = %+v", e)
	}

	var meta map[string]string
	if err := json.Unmarshal(e.Metadata, &meta); err != nil {
		t.Fatalf("metadata is not an object: %s", e.Metadata)
	}
	if meta["schema"] != "foo" || meta["signature"] != "b" || len(meta) != 2 {
		t.Errorf("metadata = %v, want schema+signature", meta)
	}
}

func TestParsePayloadExplicitMetadata(t *testing.T) {
	e, err := ParsePayload(nsAccounts, []byte(`{"key":"acct","value":{"a":1},"metadata":"opaque"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Metadata) != `"opaque"` {
		t.Errorf("Metadata = %s, want \"opaque\"", e.Metadata)
	}
}

func TestParsePayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"missing key", `{"value":1}`},
		{"empty key", `{"key":"","value":1}`},
		{"numeric key", `{"key":3,"value":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(nsSettings, []byte(tt.body))
			if !errors.Is(err, ErrInvalidChange) {
				t.Errorf("ParsePayload(%s) error = %v, want ErrInvalidChange", tt.body, err)
			}
		})
	}
}

func TestPayloadRestoresSubmittedShape(t *testing.T) {
	body := `{"key":"/foo/baz","schema":"foo","signature":"b","value":true}`
	e, err := ParsePayload(nsSettings, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("Payload() = %s, want %s", got, body)
	}
}

func TestPayloadNestsNonObjectMetadata(t *testing.T) {
	e := Event{Key: "k", Value: json.RawMessage(`1`), Metadata: json.RawMessage(`[1,2]`)}
	got, err := e.Payload()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"key":"k","metadata":[1,2],"value":1}`
	if string(got) != want {
		t.Errorf("Payload() = %s, want %s", got, want)
	}
}

func TestPayloadNestsShadowingMetadata(t *testing.T) {
	e := Event{Key: "k", Value: json.RawMessage(`1`), Metadata: json.RawMessage(`{"value":2}`)}
	got, err := e.Payload()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"key":"k","metadata":{"value":2},"value":1}`
	if string(got) != want {
		t.Errorf("Payload() = %s, want %s", got, want)
	}
}

func TestPayloadIsCompactAndKeyOrdered(t *testing.T) {
	e := Event{
		Key:      "/z",
		Value:    json.RawMessage("{ \"b\": 1,\n \"a\": [ 1, 2 ] }"),
		Metadata: json.RawMessage(`{"signature": "s", "schema": "x"}`),
	}
	want := `{"key":"/z","schema":"x","signature":"s","value":{"b":1,"a":[1,2]}}`
	for range 3 {
		got, err := e.Payload()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Fatalf("Payload() = %s, want %s", got, want)
		}
	}

	e.Value = json.RawMessage(`{broken`)
	if _, err := e.Payload(); err == nil {
		t.Error("Payload() should reject a malformed value")
	}
}

func TestEntryJSONRoundTrip(t *testing.T) {
	in := Entry{Key: "/foo/bar", Value: json.RawMessage(`"second"`)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["/foo/bar","second"]` {
		t.Errorf("Marshal = %s", data)
	}
	var out Entry
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Key != in.Key || string(out.Value) != string(in.Value) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
