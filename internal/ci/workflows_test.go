package ci_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGoTestsWorkflowRunsVetAndTests(t *testing.T) {
	t.Parallel()

	workflowPath := filepath.Join("..", "..", ".github", "workflows", "go-tests.yml")
	data, readErr := os.ReadFile(workflowPath)
	if readErr != nil {
		t.Fatalf("read workflow: %v", readErr)
	}

	for _, snippet := range []string{"go vet ./...", "go test ./...", "go-version-file: go.mod"} {
		if !bytes.Contains(data, []byte(snippet)) {
			t.Fatalf("workflow %q missing %q", workflowPath, snippet)
		}
	}
}
