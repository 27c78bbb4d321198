package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := store.CreateCredential(context.Background(), domain.Credential{Username: "doctor", PasswordHash: "h"}); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}
	return store
}

func record(name string, label domain.Label, confidence float64) *domain.PatientRecord {
	return &domain.PatientRecord{
		OwnerUsername:  "doctor",
		PatientName:    name,
		Classification: label,
		Confidence:     confidence,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestDuplicateUsernameDoesNotOverwrite(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.CreateCredential(ctx, domain.Credential{Username: "doctor", PasswordHash: "other"})
	if !domain.IsKind(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	cred, err := store.GetCredential(ctx, "doctor")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred.PasswordHash != "h" {
		t.Fatalf("credential was overwritten: %q", cred.PasswordHash)
	}
	if _, err := store.GetCredential(ctx, "nobody"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPatientIDsAreSequential(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.SaveRecord(ctx, record("Jane", domain.LabelNormal, 0.8))
	if err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}
	second, err := store.SaveRecord(ctx, record("John", domain.LabelViral, 0.77))
	if err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}
	if first != "PT001" || second != "PT002" {
		t.Fatalf("expected PT001, PT002; got %s, %s", first, second)
	}

	records, err := store.ListRecords(ctx, "doctor")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 2 || records[0].PatientID != "PT001" || records[1].Classification != domain.LabelViral {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[1].Confidence != 0.77 {
		t.Fatalf("confidence not preserved: %v", records[1].Confidence)
	}
}

func TestPatientIDsStayUniqueUnderConcurrency(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.SaveRecord(ctx, record("P", domain.LabelBacterial, 0.6))
			if err != nil {
				t.Errorf("SaveRecord() error = %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate patient id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d ids, got %d", n, len(seen))
	}
	if !seen["PT020"] {
		t.Fatalf("expected ids to run up to PT020, got %v", seen)
	}
}

func TestGetRecordReturnsImage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	rec := record("Jane", domain.LabelNormal, 0.9)
	rec.Image = []byte{0x89, 'P', 'N', 'G'}
	rec.Notes = "left lobe"
	id, err := store.SaveRecord(ctx, rec)
	if err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}

	got, err := store.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if !bytes.Equal(got.Image, rec.Image) || got.Notes != "left lobe" || got.OwnerUsername != "doctor" {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, err := store.GetRecord(ctx, "PT999"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMigrateIsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pneumonia.db")
	for i := 0; i < 2; i++ {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i, err)
		}
		_ = store.Close()
	}
}
