package pane

import (
	"encoding/json"
	"strings"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

func TestCanonicalIgnoresKeyOrderAndNumberForm(t *testing.T) {
	var a, b any
	if err := json.Unmarshal([]byte(`{"b":[1.0,2],"a":{"y":"<x>","x":1}}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"a":{"x":1.0,"y":"<x>"},"b":[1,2.0]}`), &b); err != nil {
		t.Fatal(err)
	}
	ca, err := Canonical(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := Canonical(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical forms differ:\n%s\n%s", ca, cb)
	}
	if want := `{"a":{"x":1,"y":"<x>"},"b":[1,2]}`; string(ca) != want {
		t.Fatalf("canonical = %s, want %s", ca, want)
	}
}

func TestCanonicalKeepsLargeIntegers(t *testing.T) {
	v := map[string]any{"id": int64(1<<53 + 1), "ratio": 2.0, "n": json.Number("18446744073709551615")}
	got, err := Canonical(v)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"id":9007199254740993,"n":18446744073709551615,"ratio":2}`; string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}
}

func TestHashStableAcrossRoundTrip(t *testing.T) {
	p := mustBuild(t, `{"win":"h","data":[{"type":"scatter","name":"a","x":[0,1],"y":[2,3]}],"layout":{"title":"t"}}`)
	p.I = 3
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var back Pane
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	h1, err := Hash(p)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(&back)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash changed across round trip: %s vs %s", h1, h2)
	}
}

func TestPacketPatchReproducesPane(t *testing.T) {
	big := make([]string, 200)
	for i := range big {
		big[i] = "1"
	}
	series := "[" + strings.Join(big, ",") + "]"
	prev := mustBuild(t, `{"win":"w","data":[{"type":"scatter","name":"a","x":`+series+`,"y":`+series+`}]}`)
	next, err := Update(prev, decodeArgs(t, `{"name":"a","append":true,"data":[{"x":[2],"y":[3]}]}`))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	packet, err := Packet(prev, next, "main")
	if err != nil {
		t.Fatalf("Packet() error = %v", err)
	}
	var msg WindowUpdate
	if err := json.Unmarshal(packet, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Command != "window_update" || msg.Win != "w" || msg.Env != "main" {
		t.Fatalf("expected a window_update packet, got %s", packet)
	}

	patchRaw, err := json.Marshal(msg.Content)
	if err != nil {
		t.Fatal(err)
	}
	patch, err := jsonpatch.DecodePatch(patchRaw)
	if err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	source, err := json.Marshal(prev)
	if err != nil {
		t.Fatal(err)
	}
	patched, err := patch.Apply(source)
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	var result Pane
	if err := json.Unmarshal(patched, &result); err != nil {
		t.Fatal(err)
	}
	hash, err := Hash(&result)
	if err != nil {
		t.Fatal(err)
	}
	if hash != msg.FinalHash {
		t.Fatalf("patched hash %s != finalHash %s", hash, msg.FinalHash)
	}
}

func TestPacketPrefersFullPaneWhenSmaller(t *testing.T) {
	prev := mustBuild(t, `{"win":"t","data":[{"type":"text","content":"a"}]}`)
	next, err := Update(prev, decodeArgs(t, `{"data":[{"type":"text","content":"b"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	next.Content = "replaced"
	packet, err := Packet(prev, next, "main")
	if err != nil {
		t.Fatal(err)
	}
	full, _ := json.Marshal(next)
	if len(packet) > len(full) {
		t.Fatalf("packet longer than full pane: %d > %d", len(packet), len(full))
	}

	first, err := Packet(nil, next, "main")
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(full) {
		t.Fatalf("nil prev must send the full pane")
	}
}

func TestBuildPerType(t *testing.T) {
	cases := []struct {
		raw  string
		want Type
	}{
		{`{"data":[{"type":"text","content":"hi"}]}`, TypeText},
		{`{"data":[{"type":"image","content":{"src":"x"}}]}`, TypeImage},
		{`{"data":[{"type":"properties","content":[]}]}`, TypeProperties},
		{`{"data":[{"type":"network","content":{}}]}`, TypeNetwork},
		{`{"data":[{"type":"image_history","content":{"src":"x"}}]}`, TypeImageHistory},
		{`{"data":[{"type":"embeddings","content":{"data":[]}}]}`, TypeEmbeddings},
		{`{"data":[{"type":"bar","x":[1]}]}`, TypePlot},
	}
	for _, tc := range cases {
		p := mustBuild(t, tc.raw)
		if p.Type != tc.want {
			t.Fatalf("%s: type = %s, want %s", tc.raw, p.Type, tc.want)
		}
		if !strings.HasPrefix(p.ID, "window_") {
			t.Fatalf("expected generated window id, got %q", p.ID)
		}
		if !p.Inflate {
			t.Fatalf("%s: inflate should default to true", tc.raw)
		}
	}
	if _, err := Build(Args{Data: []any{}}); err == nil {
		t.Fatal("expected error for empty data")
	}
	if _, err := Build(decodeArgs(t, `{"data":[{"type":"text"}]}`)); err == nil {
		t.Fatal("expected error for text without content")
	}
}
