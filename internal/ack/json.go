package ack

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultProcessingStates are the item states that mean the remote has
// received the whole file.
var DefaultProcessingStates = []string{"processing", "transcoding", "finished"}

// JSONClassifier recognizes the upload service's JSON payloads:
//
//	initiation: {"uid": "...", "max_file_size": 524288000, ...}
//	completion: {"uid": "...", "id": 123, "permalink_url": "https://...", "state": "processing", ...}
//
// A completion must carry an id and a recognized state; its uid is optional.
type JSONClassifier struct {
	// URLFilter restricts classification to responses whose URL contains it.
	URLFilter string
	// States overrides DefaultProcessingStates.
	States []string
}

// Classify implements Classifier.
func (c JSONClassifier) Classify(r Response) Signal {
	if c.URLFilter != "" && !strings.Contains(r.URL, c.URLFilter) {
		return Signal{}
	}
	if r.Status != 0 && (r.Status < 200 || r.Status > 299) {
		return Signal{}
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 || body[0] != '{' {
		return Signal{}
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Signal{}
	}

	uid := stringField(payload, "uid")
	if maxSize, ok := intField(payload, "max_file_size"); ok {
		initiation := Initiation{TransferID: uid, MaxSize: maxSize}
		if initiation.Valid() {
			return InitiationSignal(initiation)
		}
		return Signal{}
	}

	state := strings.ToLower(stringField(payload, "state"))
	id := idField(payload, "id")
	if id == "" || !c.recognized(state) {
		return Signal{}
	}
	if _, present := payload["permalink_url"]; !present {
		return Signal{}
	}
	return CompletionSignal(Completion{
		TransferID: uid,
		RemoteID:   id,
		RemoteURL:  stringField(payload, "permalink_url"),
		State:      state,
	})
}

func (c JSONClassifier) recognized(state string) bool {
	states := c.States
	if len(states) == 0 {
		states = DefaultProcessingStates
	}
	for _, s := range states {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intField(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func idField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case json.Number:
		return v.String()
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}
