package sync

import (
	"context"
	"time"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/directory"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/models"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/users"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/logger"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/metrics"
)

// defaultFirstName is used when the directory reports no given name.
const defaultFirstName = "User"

// Stats accumulates per-record outcomes over one run.
type Stats struct {
	Checked int `json:"checked"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Result is the summary handed back to the trigger. Success is false only
// when the run terminated early on a directory failure; record-level errors
// alone do not fail a run.
type Result struct {
	Success       bool   `json:"success"`
	Stats         Stats  `json:"stats"`
	FailureReason string `json:"failureReason,omitempty"`
}

// outcome tags the result of processing one directory record. The run loop
// folds outcomes into Stats; no error values cross the record boundary.
type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeSkipped
	outcomeErrored
)

// Reconciler drives one synchronization run: page by page, record by record,
// in directory order. Every mutation is idempotent, so a crashed run is
// recovered by simply running again from offset zero.
type Reconciler struct {
	pager *directory.Paginator
	repo  users.Repository
	now   func() time.Time
}

func NewReconciler(p *directory.Paginator, r users.Repository) *Reconciler {
	return &Reconciler{pager: p, repo: r, now: func() time.Time { return time.Now().UTC() }}
}

// Run executes one complete pass over the directory and returns the summary.
// A page-fetch failure ends the run early with the stats accumulated so far;
// outcomes of records from earlier pages stand.
func (r *Reconciler) Run(ctx context.Context) Result {
	started := r.now()
	var stats Stats
	offset := 0
	for {
		records, exhausted, err := r.pager.NextPage(ctx, offset)
		if err != nil {
			stats.Errors++
			logger.Errorf("user sync: fetching page at offset %d: %v", offset, err)
			return r.finish(started, Result{Success: false, Stats: stats, FailureReason: err.Error()})
		}
		stats.Checked += len(records)

		for i := range records {
			switch r.reconcileRecord(ctx, &records[i]) {
			case outcomeCreated:
				stats.Created++
			case outcomeUpdated:
				stats.Updated++
			case outcomeErrored:
				stats.Errors++
			}
		}

		logger.Infof("user sync progress: %d users checked", stats.Checked)
		if exhausted {
			break
		}
		offset += r.pager.PageSize()
	}
	return r.finish(started, Result{Success: true, Stats: stats})
}

func (r *Reconciler) finish(started time.Time, res Result) Result {
	metrics.SyncDuration.Observe(r.now().Sub(started).Seconds())
	metrics.SyncChecked.Add(float64(res.Stats.Checked))
	metrics.SyncCreated.Add(float64(res.Stats.Created))
	metrics.SyncUpdated.Add(float64(res.Stats.Updated))
	metrics.SyncErrors.Add(float64(res.Stats.Errors))
	if res.Success {
		metrics.SyncRuns.WithLabelValues("success").Inc()
	} else {
		metrics.SyncRuns.WithLabelValues("failure").Inc()
	}
	return res
}

// reconcileRecord turns one directory record into at most one store mutation.
// Nothing escapes the record boundary: lookup and save errors become
// outcomeErrored, and a panic while processing a malformed record is absorbed
// the same way so the rest of the page still runs.
func (r *Reconciler) reconcileRecord(ctx context.Context, rec *directory.Record) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("user sync: panic processing user %s: %v", rec.ID, p)
			out = outcomeErrored
		}
	}()

	email := rec.PrimaryEmail()
	if email == "" {
		logger.Warnf("user %s has no primary email, skipping", rec.ID)
		return outcomeSkipped
	}

	u, err := r.repo.FindByClerkIDOrEmail(ctx, rec.ID, email)
	if err != nil {
		logger.Errorf("user sync: looking up user %s: %v", rec.ID, err)
		return outcomeErrored
	}

	created := false
	changed := false
	if u == nil {
		u = r.newUser(rec, email)
		created = true
	} else {
		changed = applyScalarFields(u, rec, email)
	}

	if r.mergeExternalAccounts(u, rec.ExternalAccounts) {
		changed = true
	}

	// save only when something to write: an untouched user stays byte-identical
	// across reruns, which is what makes the whole sync idempotent
	if created || changed {
		if err := r.repo.Save(ctx, u); err != nil {
			logger.Errorf("user sync: saving user %s: %v", rec.ID, err)
			return outcomeErrored
		}
	}

	switch {
	case created:
		return outcomeCreated
	case changed:
		return outcomeUpdated
	default:
		return outcomeUnchanged
	}
}

func (r *Reconciler) newUser(rec *directory.Record, email string) *models.User {
	firstName := rec.FirstName
	if firstName == "" {
		firstName = defaultFirstName
	}
	createdAt := time.UnixMilli(rec.CreatedAt).UTC()
	lastLogin := createdAt
	if rec.LastSignInAt != 0 {
		lastLogin = time.UnixMilli(rec.LastSignInAt).UTC()
	}
	return &models.User{
		ClerkID:      rec.ID,
		AuthProvider: "clerk",
		Email:        email,
		FirstName:    firstName,
		LastName:     rec.LastName,
		CreatedAt:    createdAt,
		LastLogin:    lastLogin,
	}
}

// applyScalarFields copies differing directory values onto the user and
// reports whether anything changed. Name fields are directory-wins only when
// the directory actually carries a value.
func applyScalarFields(u *models.User, rec *directory.Record, email string) bool {
	changed := false
	if u.ClerkID != rec.ID {
		u.ClerkID = rec.ID
		changed = true
	}
	if u.Email != email {
		u.Email = email
		changed = true
	}
	if rec.FirstName != "" && u.FirstName != rec.FirstName {
		u.FirstName = rec.FirstName
		changed = true
	}
	if rec.LastName != "" && u.LastName != rec.LastName {
		u.LastName = rec.LastName
		changed = true
	}
	return changed
}

// mergeExternalAccounts appends linked accounts not yet present on the user,
// deduplicated by (provider, providerId) after prefix normalization. Existing
// entries are never rewritten.
func (r *Reconciler) mergeExternalAccounts(u *models.User, accounts []directory.ExternalAccount) bool {
	added := false
	for _, acc := range accounts {
		provider := NormalizeProvider(acc.Provider)
		if u.HasSocialLogin(provider, acc.ProviderUserID) {
			continue
		}
		createdAt := r.now()
		if acc.CreatedAt != 0 {
			createdAt = time.UnixMilli(acc.CreatedAt).UTC()
		}
		u.SocialLogins = append(u.SocialLogins, models.SocialLogin{
			Provider:   provider,
			ProviderID: acc.ProviderUserID,
			Data: models.SocialLoginData{
				Email:     acc.EmailAddress,
				Username:  acc.Username,
				AvatarURL: acc.AvatarURL,
			},
			LastUsed:  r.now(),
			CreatedAt: createdAt,
		})
		added = true
	}
	return added
}
