package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSourceJSONKeepsWireShape(t *testing.T) {
	source := Source{
		ID:       "src-1",
		Name:     "Play Store reviews",
		Kind:     KindReviews,
		Selected: true,
		Meta:     ReviewsMeta{Store: ReviewStorePlay, URL: "https://play.google.com/store/apps/details?id=x"},
	}
	raw, err := json.Marshal(source)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	if generic["type"] != "reviews" || generic["selected"] != true {
		t.Fatalf("unexpected wire shape: %s", raw)
	}
	meta, ok := generic["meta"].(map[string]any)
	if !ok || meta["store"] != "play" {
		t.Fatalf("expected meta.store=play, got %s", raw)
	}
}

func TestSourceUnmarshalSelectsMetaByKind(t *testing.T) {
	var source Source
	if err := json.Unmarshal([]byte(`{"id":"a","name":"roadmap.pdf","type":"pdf","selected":false,"meta":{"fileId":"f_roadmap.pdf"}}`), &source); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if source.FileID() != "f_roadmap.pdf" {
		t.Fatalf("expected file id, got %+v", source)
	}

	var link Source
	if err := json.Unmarshal([]byte(`{"id":"b","name":"notes","type":"link","selected":true}`), &link); err != nil {
		t.Fatalf("unmarshal link: %v", err)
	}
	if link.Meta != nil {
		t.Fatalf("expected nil meta, got %#v", link.Meta)
	}
	out, _ := json.Marshal(link)
	if string(out) != `{"id":"b","name":"notes","type":"link","selected":true}` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestSourceUnmarshalRejectsUnknownKind(t *testing.T) {
	var source Source
	err := json.Unmarshal([]byte(`{"id":"a","name":"x","type":"video","selected":true}`), &source)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
