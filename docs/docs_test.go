package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

func TestSwaggerDocRegistered(t *testing.T) {
	raw, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}

	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("swagger doc is not valid JSON: %v", err)
	}
	if doc.BasePath != "/api/v1" {
		t.Fatalf("basePath = %q", doc.BasePath)
	}
	for path, method := range map[string]string{
		"/courses/{courseId}/test/generate":           "post",
		"/courses/{courseId}/test/{testId}/submit":    "post",
		"/courses/verify-certificate/{certificateId}": "get",
		"/courses/{courseId}/test/cooldown":           "get",
	} {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Fatalf("missing %s %s", method, path)
		}
	}
}
