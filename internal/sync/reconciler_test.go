package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/directory"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/models"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/users"
)

// pagedDirectory serves fixed pages in order; failAt makes the fetch at that
// page index fail.
type pagedDirectory struct {
	pages  [][]directory.Record
	failAt int
	calls  int
}

func (d *pagedDirectory) ListUsers(ctx context.Context, limit, offset int) ([]directory.Record, error) {
	idx := d.calls
	d.calls++
	if d.failAt >= 0 && idx == d.failAt {
		return nil, fmt.Errorf("%w: connection reset", directory.ErrUnavailable)
	}
	if idx >= len(d.pages) {
		return nil, nil
	}
	return d.pages[idx], nil
}

func newPagedDirectory(pages ...[]directory.Record) *pagedDirectory {
	return &pagedDirectory{pages: pages, failAt: -1}
}

// failingSaveRepo wraps the memory repository and fails Save for one email.
type failingSaveRepo struct {
	*users.MemoryRepository
	failEmail string
}

func (f *failingSaveRepo) Save(ctx context.Context, u *models.User) error {
	if u.Email == f.failEmail {
		return errors.New("write concern error")
	}
	return f.MemoryRepository.Save(ctx, u)
}

func record(id, emailID, email, first, last string) directory.Record {
	return directory.Record{
		ID:                    id,
		EmailAddresses:        []directory.EmailAddress{{ID: emailID, EmailAddress: email}},
		PrimaryEmailAddressID: emailID,
		FirstName:             first,
		LastName:              last,
		CreatedAt:             1700000000000,
		LastSignInAt:          1700000100000,
	}
}

func newTestReconciler(repo users.Repository, pageSize int, pages ...[]directory.Record) (*Reconciler, *pagedDirectory) {
	dir := newPagedDirectory(pages...)
	r := NewReconciler(directory.NewPaginator(dir, pageSize), repo)
	r.now = func() time.Time { return time.Unix(1700001000, 0).UTC() }
	return r, dir
}

func TestRunCreatePath(t *testing.T) {
	repo := users.NewMemoryRepository()
	r, _ := newTestReconciler(repo, 100, []directory.Record{
		record("u1", "em1", "a@x.com", "Ada", "Lovelace"),
	})

	res := r.Run(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	want := Stats{Checked: 1, Created: 1}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}

	all := repo.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 stored user, got %d", len(all))
	}
	u := all[0]
	if u.ClerkID != "u1" || u.Email != "a@x.com" || u.FirstName != "Ada" || u.LastName != "Lovelace" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.AuthProvider != "clerk" {
		t.Fatalf("unexpected auth provider: %q", u.AuthProvider)
	}
	if u.CreatedAt != time.UnixMilli(1700000000000).UTC() {
		t.Fatalf("unexpected createdAt: %v", u.CreatedAt)
	}
	if u.LastLogin != time.UnixMilli(1700000100000).UTC() {
		t.Fatalf("unexpected lastLogin: %v", u.LastLogin)
	}
}

func TestRunCreateDefaultsNameAndLastLogin(t *testing.T) {
	repo := users.NewMemoryRepository()
	rec := record("u1", "em1", "a@x.com", "", "")
	rec.LastSignInAt = 0
	r, _ := newTestReconciler(repo, 100, []directory.Record{rec})

	res := r.Run(context.Background())
	if res.Stats.Created != 1 {
		t.Fatalf("expected one created, got %+v", res.Stats)
	}
	u := repo.All()[0]
	if u.FirstName != "User" || u.LastName != "" {
		t.Fatalf("unexpected name defaults: %q %q", u.FirstName, u.LastName)
	}
	if u.LastLogin != u.CreatedAt {
		t.Fatalf("lastLogin should fall back to createdAt: %v vs %v", u.LastLogin, u.CreatedAt)
	}
}

func TestRunUpdatePath(t *testing.T) {
	repo := users.NewMemoryRepository()
	seed := &models.User{ClerkID: "u1", Email: "old@x.com", FirstName: "Ada", LastName: "L"}
	if err := repo.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	r, _ := newTestReconciler(repo, 100, []directory.Record{
		record("u1", "em1", "new@x.com", "Ada", "L"),
	})
	res := r.Run(context.Background())

	want := Stats{Checked: 1, Updated: 1}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	all := repo.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 user, got %d", len(all))
	}
	if all[0].Email != "new@x.com" {
		t.Fatalf("email not updated: %q", all[0].Email)
	}
}

func TestRunUpdateCountsOncePerRecord(t *testing.T) {
	repo := users.NewMemoryRepository()
	seed := &models.User{ClerkID: "stale", Email: "old@x.com", FirstName: "X", LastName: "Y"}
	if err := repo.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// every scalar field differs, still one update
	r, _ := newTestReconciler(repo, 100, []directory.Record{
		record("u1", "em1", "old@x.com", "Ada", "Lovelace"),
	})
	res := r.Run(context.Background())
	if res.Stats.Updated != 1 {
		t.Fatalf("updated = %d, want 1", res.Stats.Updated)
	}
}

func TestRunEmptyNameDoesNotOverwrite(t *testing.T) {
	repo := users.NewMemoryRepository()
	seed := &models.User{ClerkID: "u1", Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace"}
	if err := repo.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	r, _ := newTestReconciler(repo, 100, []directory.Record{
		record("u1", "em1", "a@x.com", "", ""),
	})
	res := r.Run(context.Background())
	if res.Stats.Updated != 0 {
		t.Fatalf("absent directory names must not count as update: %+v", res.Stats)
	}
	u := repo.All()[0]
	if u.FirstName != "Ada" || u.LastName != "Lovelace" {
		t.Fatalf("names were overwritten: %+v", u)
	}
}

func TestRunIdempotency(t *testing.T) {
	repo := users.NewMemoryRepository()
	rec := record("u1", "em1", "a@x.com", "Ada", "L")
	rec.ExternalAccounts = []directory.ExternalAccount{
		{Provider: "oauth_google", ProviderUserID: "g123", EmailAddress: "a@gmail.com", CreatedAt: 1700000000000},
	}
	pages := []directory.Record{rec, record("u2", "em2", "b@x.com", "Bob", "B")}

	r1, _ := newTestReconciler(repo, 100, pages)
	res1 := r1.Run(context.Background())
	if res1.Stats.Created != 2 {
		t.Fatalf("first run: %+v", res1.Stats)
	}
	after1 := repo.All()

	r2, _ := newTestReconciler(repo, 100, pages)
	res2 := r2.Run(context.Background())
	if res2.Stats.Created != 0 || res2.Stats.Updated != 0 || res2.Stats.Errors != 0 {
		t.Fatalf("second run should be a no-op: %+v", res2.Stats)
	}
	after2 := repo.All()

	if !reflect.DeepEqual(after1, after2) {
		t.Fatalf("user set changed across idempotent reruns:\n%+v\n%+v", after1, after2)
	}
}

func TestRunLinkedAccountDedup(t *testing.T) {
	repo := users.NewMemoryRepository()
	rec := record("u1", "em1", "a@x.com", "Ada", "L")
	// same account twice inside one record
	rec.ExternalAccounts = []directory.ExternalAccount{
		{Provider: "oauth_google", ProviderUserID: "g123"},
		{Provider: "oauth_google", ProviderUserID: "g123"},
	}
	r, _ := newTestReconciler(repo, 100, []directory.Record{rec})

	res := r.Run(context.Background())
	if res.Stats.Created != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
	u := repo.All()[0]
	if len(u.SocialLogins) != 1 {
		t.Fatalf("expected 1 social login, got %d", len(u.SocialLogins))
	}
	if u.SocialLogins[0].Provider != "google" || u.SocialLogins[0].ProviderID != "g123" {
		t.Fatalf("unexpected social login: %+v", u.SocialLogins[0])
	}
}

func TestRunLinkedAccountAloneCountsAsUpdate(t *testing.T) {
	repo := users.NewMemoryRepository()
	seed := &models.User{ClerkID: "u1", Email: "a@x.com", FirstName: "Ada", LastName: "L"}
	if err := repo.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec := record("u1", "em1", "a@x.com", "Ada", "L")
	rec.ExternalAccounts = []directory.ExternalAccount{
		{Provider: "oauth_github", ProviderUserID: "gh9", Username: "ada"},
	}
	r, _ := newTestReconciler(repo, 100, []directory.Record{rec})

	res := r.Run(context.Background())
	if res.Stats.Updated != 1 {
		t.Fatalf("account append alone should count as one update: %+v", res.Stats)
	}
	u := repo.All()[0]
	if len(u.SocialLogins) != 1 || u.SocialLogins[0].Provider != "github" {
		t.Fatalf("unexpected social logins: %+v", u.SocialLogins)
	}
	if u.SocialLogins[0].Data.Username != "ada" {
		t.Fatalf("profile data not carried over: %+v", u.SocialLogins[0].Data)
	}
}

func TestRunUnresolvableRecordSkipped(t *testing.T) {
	repo := users.NewMemoryRepository()
	rec := directory.Record{
		ID:                    "u1",
		EmailAddresses:        []directory.EmailAddress{{ID: "em1", EmailAddress: "a@x.com"}},
		PrimaryEmailAddressID: "em_gone",
	}
	r, _ := newTestReconciler(repo, 100, []directory.Record{rec})

	res := r.Run(context.Background())
	want := Stats{Checked: 1}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	if len(repo.All()) != 0 {
		t.Fatalf("no user should be created for an unresolvable record")
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	mem := users.NewMemoryRepository()
	repo := &failingSaveRepo{MemoryRepository: mem, failEmail: "c@x.com"}

	page := []directory.Record{
		record("u1", "em1", "a@x.com", "A", ""),
		record("u2", "em2", "b@x.com", "B", ""),
		record("u3", "em3", "c@x.com", "C", ""),
		record("u4", "em4", "d@x.com", "D", ""),
		record("u5", "em5", "e@x.com", "E", ""),
	}
	r, _ := newTestReconciler(repo, 100, page)

	res := r.Run(context.Background())
	if !res.Success {
		t.Fatalf("record-level errors must not fail the run: %+v", res)
	}
	want := Stats{Checked: 5, Created: 4, Errors: 1}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	if len(mem.All()) != 4 {
		t.Fatalf("expected 4 persisted users, got %d", len(mem.All()))
	}
}

func TestRunDirectoryOutageMidRun(t *testing.T) {
	repo := users.NewMemoryRepository()
	page1 := make([]directory.Record, 100)
	for i := range page1 {
		page1[i] = record(fmt.Sprintf("u%d", i), fmt.Sprintf("em%d", i), fmt.Sprintf("user%d@x.com", i), "U", "")
	}
	dir := newPagedDirectory(page1)
	dir.failAt = 1
	r := NewReconciler(directory.NewPaginator(dir, 100), repo)
	r.now = func() time.Time { return time.Unix(1700001000, 0).UTC() }

	res := r.Run(context.Background())
	if res.Success {
		t.Fatal("directory outage must fail the run")
	}
	if res.Stats.Checked != 100 {
		t.Fatalf("checked = %d, want 100 from the completed page", res.Stats.Checked)
	}
	if res.Stats.Created != 100 {
		t.Fatalf("created = %d, earlier records keep their outcome", res.Stats.Created)
	}
	if res.Stats.Errors != 1 {
		t.Fatalf("page failure counts once: errors = %d", res.Stats.Errors)
	}
	if res.FailureReason == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestRunMultiplePages(t *testing.T) {
	repo := users.NewMemoryRepository()
	page1 := make([]directory.Record, 2)
	for i := range page1 {
		page1[i] = record(fmt.Sprintf("u%d", i), fmt.Sprintf("em%d", i), fmt.Sprintf("user%d@x.com", i), "U", "")
	}
	page2 := []directory.Record{record("u9", "em9", "user9@x.com", "U", "")}
	r, dir := newTestReconciler(repo, 2, page1, page2)

	res := r.Run(context.Background())
	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	want := Stats{Checked: 3, Created: 3}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	if dir.calls != 2 {
		t.Fatalf("expected 2 page fetches, got %d", dir.calls)
	}
}

// panickyRepo panics on lookup for one clerk id, behaves normally otherwise.
type panickyRepo struct {
	*users.MemoryRepository
	panicOn string
}

func (p *panickyRepo) FindByClerkIDOrEmail(ctx context.Context, clerkID, email string) (*models.User, error) {
	if clerkID == p.panicOn {
		panic("corrupt index entry")
	}
	return p.MemoryRepository.FindByClerkIDOrEmail(ctx, clerkID, email)
}

func TestRunPanicInRecordIsContained(t *testing.T) {
	mem := users.NewMemoryRepository()
	repo := &panickyRepo{MemoryRepository: mem, panicOn: "u1"}
	r, _ := newTestReconciler(repo, 100, []directory.Record{
		record("u1", "em1", "a@x.com", "A", ""),
		record("u2", "em2", "b@x.com", "B", ""),
	})

	res := r.Run(context.Background())
	if !res.Success {
		t.Fatalf("a contained record panic must not fail the run: %+v", res)
	}
	want := Stats{Checked: 2, Created: 1, Errors: 1}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	if len(mem.All()) != 1 {
		t.Fatalf("the record after the panic should still be processed")
	}
}
