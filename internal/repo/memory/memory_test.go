package memory

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/repotest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return New() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	tgt := repotest.NewTarget("copy")
	if err := s.Create(ctx, tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, tgt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.TotalChecks = 500
	now := time.Now()
	got.LastCheck = &now

	again, _ := s.Get(ctx, tgt.ID)
	if again.TotalChecks != 0 || again.LastCheck != nil {
		t.Fatalf("caller mutation leaked into store: %+v", again)
	}
}

func TestMemoryStore_UpdateResumesStopped(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt := repotest.NewTarget("resume")
	if err := s.Create(ctx, tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Stop(ctx, tgt.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	edit, _ := s.Get(ctx, tgt.ID)
	edit.Active = true
	if err := s.Update(ctx, edit); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if edit.Status != domain.StatusPending || !edit.Active {
		t.Fatalf("reactivating a stopped target should make it pending: %+v", edit)
	}
}
