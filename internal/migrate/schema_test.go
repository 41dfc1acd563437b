package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veritrail.io/internal/record"
)

// The status CHECK constraints must admit every status the workflow can
// reach; a missing value turns a legal transition into a constraint error
// at commit time.
func TestStatusChecksCoverWorkflow(t *testing.T) {
	statuses := []record.Status{
		record.StatusPending,
		record.StatusInProgress,
		record.StatusWaitingReview,
		record.StatusWaitingApproval,
		record.StatusOverdue,
		record.StatusCompleted,
		record.StatusFailed,
		record.StatusCancelled,
	}

	for _, name := range []string{"0004_compliance.up.sql", "0005_training.up.sql"} {
		raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		ddl := string(raw)
		for _, s := range statuses {
			if !strings.Contains(ddl, "'"+string(s)+"'") {
				t.Errorf("%s: status %q missing from check constraint", name, s)
			}
		}
	}
}
