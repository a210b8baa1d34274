package confirm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-notifier/internal/model"
)

func rec(account string) model.Record {
	return model.Record{
		AccountName: account,
		Environment: "prod",
		StartTime:   time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func keys(records []model.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key())
	}
	return out
}

func TestStaggeredLifecycle(t *testing.T) {
	a := rec("A")
	k := a.Key()

	// first sighting: silent, pending
	res := Evaluate([]model.Record{a}, map[string]model.Status{}, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.Equal(t, map[string]model.Status{k: model.StatusPending}, res.Next)

	// second sighting: notify, confirmed
	res = Evaluate([]model.Record{a}, res.Next, model.PolicyStaggered)
	assert.Equal(t, []string{k}, keys(res.Notify))
	assert.Equal(t, map[string]model.Status{k: model.StatusConfirmed}, res.Next)

	// third sighting: silent, stays confirmed
	res = Evaluate([]model.Record{a}, res.Next, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.Equal(t, map[string]model.Status{k: model.StatusConfirmed}, res.Next)

	// gone: pruned
	res = Evaluate(nil, res.Next, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.NotNil(t, res.Next)
	assert.Empty(t, res.Next)
}

func TestImmediateLifecycle(t *testing.T) {
	b := rec("B")
	k := b.Key()

	res := Evaluate([]model.Record{b}, nil, model.PolicyImmediate)
	assert.Equal(t, []string{k}, keys(res.Notify))
	assert.Equal(t, map[string]model.Status{k: model.StatusConfirmed}, res.Next)

	res = Evaluate([]model.Record{b}, res.Next, model.PolicyImmediate)
	assert.Empty(t, res.Notify)
	assert.Equal(t, map[string]model.Status{k: model.StatusConfirmed}, res.Next)
}

func TestImmediateOverwritesPending(t *testing.T) {
	b := rec("B")
	existing := map[string]model.Status{b.Key(): model.StatusPending}

	res := Evaluate([]model.Record{b}, existing, model.PolicyImmediate)
	assert.Empty(t, res.Notify, "key already known, no notification")
	assert.Equal(t, model.StatusConfirmed, res.Next[b.Key()])
}

func TestPendingGapRestarts(t *testing.T) {
	a := rec("A")

	res := Evaluate([]model.Record{a}, nil, model.PolicyStaggered)
	require.Equal(t, model.StatusPending, res.Next[a.Key()])

	res = Evaluate(nil, res.Next, model.PolicyStaggered)
	require.Empty(t, res.Next)

	res = Evaluate([]model.Record{a}, res.Next, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.Equal(t, model.StatusPending, res.Next[a.Key()])
}

func TestConfirmedGapRestarts(t *testing.T) {
	a := rec("A")
	existing := map[string]model.Status{a.Key(): model.StatusConfirmed}

	res := Evaluate(nil, existing, model.PolicyStaggered)
	require.Empty(t, res.Next)

	res = Evaluate([]model.Record{a}, res.Next, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.Equal(t, model.StatusPending, res.Next[a.Key()])
}

func TestStaggeredMixedBatch(t *testing.T) {
	pending, confirmed, fresh, gone := rec("P"), rec("C"), rec("N"), rec("G")
	existing := map[string]model.Status{
		pending.Key():   model.StatusPending,
		confirmed.Key(): model.StatusConfirmed,
		gone.Key():      model.StatusPending,
	}

	res := Evaluate([]model.Record{fresh, confirmed, pending}, existing, model.PolicyStaggered)
	assert.Equal(t, []string{pending.Key()}, keys(res.Notify))
	assert.Equal(t, map[string]model.Status{
		pending.Key():   model.StatusConfirmed,
		confirmed.Key(): model.StatusConfirmed,
		fresh.Key():     model.StatusPending,
	}, res.Next)
}

func TestNotifyOrderFollowsInput(t *testing.T) {
	a, b, c := rec("A"), rec("B"), rec("C")
	res := Evaluate([]model.Record{c, a, b}, nil, model.PolicyImmediate)
	assert.Equal(t, []string{c.Key(), a.Key(), b.Key()}, keys(res.Notify))
}

func TestDuplicateRowsNotifyOnce(t *testing.T) {
	a := rec("A")
	dup := a
	dup.ErrorMessage = "second row, same event"

	res := Evaluate([]model.Record{a, dup}, nil, model.PolicyImmediate)
	require.Len(t, res.Notify, 1)
	assert.Equal(t, "", res.Notify[0].ErrorMessage)

	existing := map[string]model.Status{a.Key(): model.StatusPending}
	res = Evaluate([]model.Record{a, dup}, existing, model.PolicyStaggered)
	assert.Len(t, res.Notify, 1)
	assert.Len(t, res.Next, 1)
}

func TestPerRecordPolicy(t *testing.T) {
	direct := rec("direct")
	flagged := rec("flagged")
	flagged.RequiresConfirmation = true

	res := Evaluate([]model.Record{direct, flagged}, nil, model.PolicyPerRecord)
	assert.Equal(t, []string{direct.Key()}, keys(res.Notify))
	assert.Equal(t, map[string]model.Status{
		direct.Key():  model.StatusConfirmed,
		flagged.Key(): model.StatusPending,
	}, res.Next)

	res = Evaluate([]model.Record{direct, flagged}, res.Next, model.PolicyPerRecord)
	assert.Equal(t, []string{flagged.Key()}, keys(res.Notify))
	assert.Equal(t, map[string]model.Status{
		direct.Key():  model.StatusConfirmed,
		flagged.Key(): model.StatusConfirmed,
	}, res.Next)

	res = Evaluate([]model.Record{direct, flagged}, res.Next, model.PolicyPerRecord)
	assert.Empty(t, res.Notify)
}

func TestUnknownStoredStatus(t *testing.T) {
	a := rec("A")
	existing := map[string]model.Status{a.Key(): model.Status("snoozed")}

	res := Evaluate([]model.Record{a}, existing, model.PolicyStaggered)
	assert.Empty(t, res.Notify)
	assert.Equal(t, model.StatusPending, res.Next[a.Key()])
}

func TestExistingNotMutated(t *testing.T) {
	a := rec("A")
	existing := map[string]model.Status{a.Key(): model.StatusPending, "old": model.StatusConfirmed}

	_ = Evaluate([]model.Record{a}, existing, model.PolicyStaggered)
	assert.Equal(t, map[string]model.Status{a.Key(): model.StatusPending, "old": model.StatusConfirmed}, existing)
}
