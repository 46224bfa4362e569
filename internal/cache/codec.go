package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const partitionMarker = ".partition"

type envelope struct {
	URL    string      `json:"url"`
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

func encodeEntry(e Entry) ([]byte, error) {
	data, err := json.Marshal(envelope{
		URL:    e.URL,
		Status: e.Status,
		Header: e.Header,
		Body:   e.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("failed to decode entry: %w", err)
	}
	if env.Header == nil {
		env.Header = http.Header{}
	}
	return Entry{
		URL:    env.URL,
		Status: env.Status,
		Header: env.Header,
		Body:   env.Body,
	}, nil
}

// objectKey maps a request URL into a flat object namespace. Keys are
// base64url encoded so that arbitrary URLs stay reversible and slash-free.
func objectKey(partition, key string) string {
	return partition + "/" + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func markerKey(partition string) string {
	return partition + "/" + partitionMarker
}

// partitionFromPrefix turns a delimited listing prefix ("name/") into a
// partition name. Plain objects at the bucket root are not partitions.
func partitionFromPrefix(prefix string) (string, bool) {
	name, found := strings.CutSuffix(prefix, "/")
	if !found || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// keyFromObject reverses objectKey. ok is false for markers and foreign
// objects.
func keyFromObject(partition, object string) (string, bool) {
	name, found := strings.CutPrefix(object, partition+"/")
	if !found || name == "" || name == partitionMarker {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
