package ap

import (
	"strings"
	"testing"

	"github.com/outpostfed/apcore/util"
)

func TestSanitizeObjectStripsScriptTags(t *testing.T) {
	obj := util.Activity{
		"content": []interface{}{`hello <script>alert(1)</script> world`},
		"summary": []interface{}{`<b>bold</b>`},
		"name":    []interface{}{"plain text"},
		"other":   []interface{}{"<script>untouched</script>"},
	}
	SanitizeObject(obj)

	content := obj["content"].([]interface{})[0].(string)
	if strings.Contains(content, "<script>") {
		t.Fatalf("expected script tag stripped from content, got %q", content)
	}
	if !strings.Contains(content, "hello") || !strings.Contains(content, "world") {
		t.Fatalf("expected surrounding text preserved, got %q", content)
	}

	summary := obj["summary"].([]interface{})[0].(string)
	if !strings.Contains(summary, "bold") {
		t.Fatalf("expected UGC-safe markup preserved in summary, got %q", summary)
	}

	name := obj["name"].([]interface{})[0].(string)
	if name != "plain text" {
		t.Fatalf("expected plain text left unchanged, got %q", name)
	}

	other := obj["other"].([]interface{})[0].(string)
	if !strings.Contains(other, "<script>") {
		t.Fatalf("expected field outside the sanitized set left untouched, got %q", other)
	}
}

func TestSanitizeObjectIgnoresMissingFields(t *testing.T) {
	obj := util.Activity{"id": "https://example.com/objects/1"}
	SanitizeObject(obj)
	if len(obj) != 1 {
		t.Fatalf("expected object unchanged when no sanitized fields present, got %v", obj)
	}
}
