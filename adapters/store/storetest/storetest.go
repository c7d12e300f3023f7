// Package storetest is a behavioral test suite shared by every store adapter.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty repository set.
type Factory func(t *testing.T) *domain.Repositories

// Run executes the whole suite against repositories produced by newRepos.
func Run(t *testing.T, newRepos Factory) {
	t.Run("WorkspaceCRUD", func(t *testing.T) { testWorkspaceCRUD(t, newRepos(t)) })
	t.Run("WorkspaceBindingAndStatus", func(t *testing.T) { testWorkspaceBindingAndStatus(t, newRepos(t)) })
	t.Run("CompanyAndLedger", func(t *testing.T) { testCompanyAndLedger(t, newRepos(t)) })
	t.Run("CreateFunded", func(t *testing.T) { testCreateFunded(t, newRepos(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newRepos(t)) })
	t.Run("Patches", func(t *testing.T) { testPatches(t, newRepos(t)) })
}

func seedCompany(t *testing.T, repos *domain.Repositories, balance int64) *model.Company {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &model.Company{Name: "Acme", Balance: balance, Plan: model.Plan{Features: []string{"multiplayer"}}, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repos.Company.Create(context.Background(), c))
	require.NotEmpty(t, c.ID)
	return c
}

func seedWorkspace(t *testing.T, repos *domain.Repositories, companyID string) *model.Workspace {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	w := &model.Workspace{
		CompanyID:  companyID,
		Name:       "Runner",
		EngineType: model.EngineGodot,
		Status:     model.StatusReady,
		ProjectDir: "/tmp/runner",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repos.Workspace.Create(context.Background(), w))
	require.NotEmpty(t, w.ID)
	return w
}

func testWorkspaceCRUD(t *testing.T, repos *domain.Repositories) {
	ctx := context.Background()
	co := seedCompany(t, repos, 0)
	w := seedWorkspace(t, repos, co.ID)

	got, err := repos.Workspace.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Name, got.Name)
	assert.Equal(t, model.EngineGodot, got.EngineType)
	assert.Equal(t, co.ID, got.CompanyID)

	got.Name = "Runner 2"
	require.NoError(t, repos.Workspace.Update(ctx, got))
	got, err = repos.Workspace.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Runner 2", got.Name)

	got.EngineType = model.EngineUnreal
	assert.ErrorIs(t, repos.Workspace.Update(ctx, got), model.ErrWorkspaceInvalid)

	list, err := repos.Workspace.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repos.Workspace.Delete(ctx, w.ID))
	_, err = repos.Workspace.Get(ctx, w.ID)
	assert.ErrorIs(t, err, model.ErrWorkspaceNotFound)
	assert.ErrorIs(t, repos.Workspace.Delete(ctx, w.ID), model.ErrWorkspaceNotFound)
}

func testWorkspaceBindingAndStatus(t *testing.T, repos *domain.Repositories) {
	ctx := context.Background()
	co := seedCompany(t, repos, 0)
	w := seedWorkspace(t, repos, co.ID)

	b := model.SessionBinding{Port: 17100, PID: 4242, PreviewURL: "http://127.0.0.1:17100/"}
	require.NoError(t, repos.Workspace.SetBinding(ctx, w.ID, b))
	got, err := repos.Workspace.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got.Binding())

	assert.ErrorIs(t, repos.Workspace.Delete(ctx, w.ID), model.ErrWorkspaceSessionBound)

	require.NoError(t, repos.Workspace.SetStatus(ctx, w.ID, model.StatusReady, model.StatusBuilding))
	assert.ErrorIs(t, repos.Workspace.SetStatus(ctx, w.ID, model.StatusReady, model.StatusBuilding), model.ErrInvalidTransition)
	assert.ErrorIs(t, repos.Workspace.SetStatus(ctx, w.ID, model.StatusBuilding, model.StatusInitializing), model.ErrInvalidTransition)
	require.NoError(t, repos.Workspace.SetStatus(ctx, w.ID, model.StatusBuilding, model.StatusError))

	require.NoError(t, repos.Workspace.SetBinding(ctx, w.ID, model.SessionBinding{}))
	got, err = repos.Workspace.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.HasSessionBinding())
	assert.Equal(t, model.StatusError, got.Status)
	require.NoError(t, repos.Workspace.Delete(ctx, w.ID))

	assert.ErrorIs(t, repos.Workspace.SetBinding(ctx, "missing", b), model.ErrWorkspaceNotFound)
}

func testCompanyAndLedger(t *testing.T, repos *domain.Repositories) {
	ctx := context.Background()
	co := seedCompany(t, repos, 100)

	got, err := repos.Company.Get(ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
	assert.True(t, got.Plan.HasFeature("multiplayer"))

	got.Name = "Acme Games"
	got.Balance = 1_000_000 // ignored: balance is owned by the ledger
	require.NoError(t, repos.Company.Update(ctx, got))
	bal, err := repos.Credit.Balance(ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)

	tx := &model.CreditTransaction{Reason: model.ReasonCommand, Metadata: model.TransactionMetadata{
		EngineType: model.EngineGodot, WorkspaceID: "ws-x", CommandPreview: "add a coin", Surcharge: 5,
	}}
	require.NoError(t, repos.Credit.Debit(ctx, co.ID, 35, tx))
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, int64(-35), tx.Amount)
	assert.Equal(t, int64(65), tx.BalanceAfter)

	err = repos.Credit.Debit(ctx, co.ID, 66, &model.CreditTransaction{Reason: model.ReasonCommand})
	assert.ErrorIs(t, err, model.ErrInsufficientCredits)

	require.NoError(t, repos.Credit.Credit(ctx, co.ID, 10, &model.CreditTransaction{Reason: model.ReasonGrant}))
	bal, err = repos.Credit.Balance(ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), bal)

	txs, err := repos.Credit.Transactions(ctx, co.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.ReasonGrant, txs[0].Reason)
	assert.Equal(t, int64(75), txs[0].BalanceAfter)
	assert.Equal(t, model.ReasonCommand, txs[1].Reason)
	assert.Equal(t, "add a coin", txs[1].Metadata.CommandPreview)
	assert.Equal(t, model.EngineGodot, txs[1].Metadata.EngineType)

	txs, err = repos.Credit.Transactions(ctx, co.ID, 1)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = repos.Credit.Balance(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrCompanyNotFound)
	assert.ErrorIs(t, repos.Credit.Debit(ctx, "missing", 1, &model.CreditTransaction{}), model.ErrCompanyNotFound)
}

func testCreateFunded(t *testing.T, repos *domain.Repositories) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &model.Company{Name: "Funded", Balance: 40, CreatedAt: now, UpdatedAt: now}
	tx := &model.CreditTransaction{Reason: "initial"}
	require.NoError(t, repos.Credit.CreateFunded(ctx, c, tx))
	require.NotEmpty(t, c.ID)
	assert.Equal(t, int64(40), tx.Amount)
	assert.Equal(t, int64(40), tx.BalanceAfter)

	bal, err := repos.Credit.Balance(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
	txs, err := repos.Credit.Transactions(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "initial", txs[0].Reason)

	// A duplicate id writes neither the company nor a transaction.
	dup := &model.Company{ID: c.ID, Name: "Again", Balance: 99, CreatedAt: now, UpdatedAt: now}
	require.Error(t, repos.Credit.CreateFunded(ctx, dup, &model.CreditTransaction{Reason: "initial"}))
	bal, err = repos.Credit.Balance(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
	txs, err = repos.Credit.Transactions(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// testConcurrentDebits checks that N concurrent debits of balance/N+1 never
// drive the balance negative: at most N-1 succeed.
func testConcurrentDebits(t *testing.T, repos *domain.Repositories) {
	const (
		balance = 1000
		n       = 8
		amount  = balance/n + 1
	)
	ctx := context.Background()
	co := seedCompany(t, repos, balance)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		otherErrs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := repos.Credit.Debit(ctx, co.ID, amount, &model.CreditTransaction{Reason: model.ReasonCommand})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, model.ErrInsufficientCredits):
			default:
				otherErrs = append(otherErrs, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, otherErrs)
	assert.LessOrEqual(t, succeeded, n-1)
	bal, err := repos.Credit.Balance(ctx, co.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bal, int64(0))
	assert.Equal(t, int64(balance-succeeded*amount), bal)

	txs, err := repos.Credit.Transactions(ctx, co.ID, 0)
	require.NoError(t, err)
	assert.Len(t, txs, succeeded, "every debit is paired with exactly one transaction")
}

func testPatches(t *testing.T, repos *domain.Repositories) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	mk := func(id string, offset time.Duration, success bool) *model.Patch {
		return &model.Patch{
			PatchID:        id,
			WorkspaceID:    "ws-1",
			EngineType:     model.EnginePlayCanvas,
			Envelope:       []byte(`{"instruction":"x"}`),
			ReverseDiff:    []byte{0x1f, 0x8b, 0x08},
			TokensUsed:     30,
			CreditsCharged: 35,
			Success:        success,
			Timings:        model.PatchTimings{BackendMs: 12, TotalMs: 20},
			ETag:           "etag-" + id,
			CreatedAt:      base.Add(offset),
		}
	}
	require.NoError(t, repos.Patch.Create(ctx, mk("p1", 0, true)))
	require.NoError(t, repos.Patch.Create(ctx, mk("p2", time.Second, false)))
	assert.ErrorIs(t, repos.Patch.Create(ctx, mk("p1", 0, true)), model.ErrPatchExists)

	got, err := repos.Patch.Get(ctx, "ws-1", "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"instruction":"x"}`, string(got.Envelope))
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08}, got.ReverseDiff)
	assert.Equal(t, int64(30), got.TokensUsed)
	assert.Equal(t, int64(35), got.CreditsCharged)
	assert.Equal(t, int64(12), got.Timings.BackendMs)
	assert.True(t, got.Success)
	assert.Nil(t, got.UndoneAt)

	_, err = repos.Patch.Get(ctx, "ws-2", "p1")
	assert.ErrorIs(t, err, model.ErrPatchNotFound)

	list, err := repos.Patch.List(ctx, "ws-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].PatchID)

	require.NoError(t, repos.Patch.MarkUndone(ctx, "ws-1", "p1"))
	assert.ErrorIs(t, repos.Patch.MarkUndone(ctx, "ws-1", "p1"), model.ErrPatchAlreadyUndone)
	assert.ErrorIs(t, repos.Patch.MarkUndone(ctx, "ws-1", "nope"), model.ErrPatchNotFound)
	got, err = repos.Patch.Get(ctx, "ws-1", "p1")
	require.NoError(t, err)
	assert.NotNil(t, got.UndoneAt)
}
