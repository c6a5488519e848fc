package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistryEnabledFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	raw := `
publishers:
  - id: http1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: http2
    type: http
    enabled: true
    http:
      url: https://example.com/2
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "http2" {
		t.Fatalf("expected only http2 enabled, got %#v", enabled)
	}
	if enabled[0].HTTP.Method != "POST" || enabled[0].HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("http defaults not applied: %#v", enabled[0].HTTP)
	}
}

func TestLoadRegistryQueueConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	raw := `
publishers:
  - id: queue
    type: sqs
    sqs:
      uri: https://sqs.eu-west-1.amazonaws.com/1/artifacts
      region: eu-west-1
      access_key_id: " AKIA "
      secret_access_key: secret
  - id: topic
    type: SNS
    sns:
      topic_arn: arn:aws:sns:eu-west-1:1:artifacts
      region: eu-west-1
  - id: gcp
    type: gcp_pubsub
    gcp_pubsub:
      project_id: proj
      topic: artifacts
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	q, _ := reg.ByID("queue")
	if q.SQS.AccessKeyID != "AKIA" || q.SQS.SecretAccessKey != "secret" {
		t.Fatalf("inline credentials not decoded: %#v", q.SQS)
	}
	topic, _ := reg.ByID("topic")
	if topic.Type != TypeSNS || topic.SNS.TopicARN == "" {
		t.Fatalf("unexpected sns config %#v", topic)
	}
	g, _ := reg.ByID("gcp")
	if g.GCP == nil || g.GCP.Topic != "artifacts" {
		t.Fatalf("unexpected gcp config %#v", g.GCP)
	}
}

func TestValidatePublisherConfigRejectsMissingBlocks(t *testing.T) {
	for _, typ := range []string{TypeHTTP, TypeSQS, TypeSNS, TypeGCPPubSub} {
		if err := validatePublisherConfig(PublisherConfig{ID: "p", Type: typ}); err == nil {
			t.Errorf("expected validation error for %s without its block", typ)
		}
	}
}

func TestLoadRegistryFilterAndJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.json")
	raw := `{"publishers": [
  {"id": "hook", "type": "http", "http": {"url": "https://example.com", "retries": -3},
   "filter": {"sources": [" nyaa ", "nyaa"], "kinds": ["Resolvable"]}}
]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	hook, ok := reg.ByID("hook")
	if !ok {
		t.Fatal("hook not found")
	}
	if len(hook.Filter.Sources) != 1 || hook.Filter.Sources[0] != "nyaa" {
		t.Fatalf("sources filter not normalized: %v", hook.Filter.Sources)
	}
	if len(hook.Filter.Kinds) != 1 || hook.Filter.Kinds[0] != "resolvable" {
		t.Fatalf("kinds filter not normalized: %v", hook.Filter.Kinds)
	}
	if hook.HTTP.Retries != 0 {
		t.Fatalf("negative retries should clamp to 0, got %d", hook.HTTP.Retries)
	}
	if !hook.Filter.Matches(Event{SourceID: "nyaa", Kind: "resolvable"}) {
		t.Fatal("filter should match nyaa magnets")
	}
	if hook.Filter.Matches(Event{SourceID: "nyaa", Kind: "direct"}) {
		t.Fatal("filter should reject direct downloads")
	}
}

func TestLoadRegistryRejectsUnknownFieldsAndKinds(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"typo.yaml": "publishers:\n  - id: hook\n    type: http\n    htpp:\n      url: https://example.com\n",
		"kind.yaml": "publishers:\n  - id: hook\n    type: http\n    http:\n      url: https://example.com\n    filter:\n      kinds: [magnet]\n",
		"dup.yaml":  "publishers:\n  - id: a\n    type: http\n    http: {url: https://a}\n  - id: a\n    type: http\n    http: {url: https://b}\n",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := LoadRegistry(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
