package scheduler

import (
	"testing"

	"go.uber.org/zap"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// TestNew_ParsesTargets verifies that well-formed "provider/dataset" entries
// become targets and malformed or unknown-provider entries are skipped.
func TestNew_ParsesTargets(t *testing.T) {
	entries := []string{
		"cwa/F-C0032-001",
		"census/2020/dec/pl",
		"missing-slash",
		"noaa/some-dataset",
		"datagov/datastore_search",
	}
	s := New(entries, nil, nil, zap.NewNop())

	if len(s.targets) != 3 {
		t.Fatalf("targets = %d, want 3", len(s.targets))
	}
	if s.targets[0].provider != models.ProviderCWA || s.targets[0].dataset != "F-C0032-001" {
		t.Errorf("first target = %+v", s.targets[0])
	}
	// Census dataset paths contain slashes; only the first one splits.
	if s.targets[1].provider != models.ProviderCensus || s.targets[1].dataset != "2020/dec/pl" {
		t.Errorf("census target = %+v", s.targets[1])
	}
	if s.targets[2].provider != models.ProviderDataGov {
		t.Errorf("third target = %+v", s.targets[2])
	}
}

// TestStart_NoTargets verifies that an empty target list is a no-op rather
// than an error.
func TestStart_NoTargets(t *testing.T) {
	s := New(nil, nil, nil, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v, want nil", err)
	}
	s.Stop()
}
