package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 10, hour, min, 0, 0, time.UTC)
}

func lunch() Event {
	return Event{ID: "e1", Title: "Lunch", Start: at(12, 0), End: at(13, 0), Location: "Cafe"}
}

func TestReconcileEmpty(t *testing.T) {
	res := Reconcile(nil, nil)

	assert.Empty(t, res.Created)
	assert.Empty(t, res.Modified)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, res.Snapshot)
	assert.False(t, res.HasChanges())
}

func TestReconcileCreated(t *testing.T) {
	res := Reconcile(Snapshot{}, []Event{lunch()})

	require.Len(t, res.Created, 1)
	assert.Equal(t, "🆕 新しい予定:\n📝 Lunch\n📍 Cafe\n🕒 2024/01/10 12:00 ~ 2024/01/10 13:00", res.Created[0])
	assert.Empty(t, res.Modified)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
	}, res.Snapshot)
	assert.True(t, res.HasChanges())
}

func TestReconcileTimeChange(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
	}
	moved := lunch()
	moved.Start = at(12, 30)

	res := Reconcile(prev, []Event{moved})

	assert.Empty(t, res.Created)
	assert.Empty(t, res.Deleted)
	require.Len(t, res.Modified, 1)
	assert.Equal(t,
		"🔄 予定変更:\n📝 Lunch\n📍 Cafe\n🕒 2024/01/10 12:30 ~ 2024/01/10 13:00\n"+
			"🔸 *時間変更:* 2024/01/10 12:00 ~ 2024/01/10 13:00 → 2024/01/10 12:30 ~ 2024/01/10 13:00",
		res.Modified[0])
	assert.NotContains(t, res.Modified[0], "予定名変更")
	assert.NotContains(t, res.Modified[0], "場所変更")
}

func TestReconcileDeleted(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
		{ID: "e2", Title: "Standup", Start: "2024/01/11 09:00", End: "2024/01/11 09:15", Location: "Room 4", Kind: KindTimed},
	}

	res := Reconcile(prev, []Event{lunch()})

	assert.Empty(t, res.Created)
	assert.Empty(t, res.Modified)
	require.Len(t, res.Deleted, 1)
	assert.Equal(t, "❌ 予定削除:\n📝 Standup\n📍 Room 4\n🕒 2024/01/11 09:00 ~ 2024/01/11 09:15", res.Deleted[0])
	assert.Len(t, res.Snapshot, 1)
}

func TestReconcileIdentity(t *testing.T) {
	live := []Event{
		lunch(),
		{ID: "e2", Title: "Offsite", Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1), AllDay: true},
		{ID: "e3", Title: "Call", Start: at(15, 0), End: at(15, 30)},
	}

	first := Reconcile(nil, live)
	second := Reconcile(first.Snapshot, live)

	assert.False(t, second.HasChanges())
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestReconcilePartition(t *testing.T) {
	prev := Snapshot{
		{ID: "keep", Title: "Same", Start: "2024/01/10 10:00", End: "2024/01/10 11:00", Location: "A", Kind: KindTimed},
		{ID: "edit", Title: "Old", Start: "2024/01/10 10:00", End: "2024/01/10 11:00", Location: "A", Kind: KindTimed},
		{ID: "gone", Title: "Gone", Start: "2024/01/10 10:00", End: "2024/01/10 11:00", Location: "A", Kind: KindTimed},
	}
	live := []Event{
		{ID: "keep", Title: "Same", Start: at(10, 0), End: at(11, 0), Location: "A"},
		{ID: "edit", Title: "New", Start: at(10, 0), End: at(11, 0), Location: "A"},
		{ID: "new", Title: "Fresh", Start: at(10, 0), End: at(11, 0), Location: "A"},
	}

	res := Reconcile(prev, live)

	assert.Len(t, res.Created, 1)
	assert.Len(t, res.Modified, 1)
	assert.Len(t, res.Deleted, 1)
	assert.Contains(t, res.Created[0], "Fresh")
	assert.Contains(t, res.Modified[0], "「Old」→「New」")
	assert.Contains(t, res.Deleted[0], "Gone")
	require.Len(t, res.Snapshot, 3)
	assert.Equal(t, []string{"keep", "edit", "new"}, ids(res.Snapshot))
}

func TestReconcileAllDayIgnoresTimeOfDay(t *testing.T) {
	prev := Snapshot{
		{ID: "h1", Title: "Holiday", Start: "2024/01/10 09:00", End: "2024/01/11 09:00", Location: NoLocation, Kind: KindAllDay},
	}
	live := []Event{
		{ID: "h1", Title: "Holiday", Start: at(17, 45), End: at(17, 45).AddDate(0, 0, 1), AllDay: true},
	}

	res := Reconcile(prev, live)

	assert.False(t, res.HasChanges())
	assert.Equal(t, "2024/01/10", res.Snapshot[0].Start)
	assert.Equal(t, "2024/01/11", res.Snapshot[0].End)
}

func TestReconcileFieldOrder(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
	}
	live := []Event{
		{ID: "e1", Title: "Dinner", Start: at(19, 0), End: at(21, 0), Location: "Bistro"},
	}

	res := Reconcile(prev, live)

	require.Len(t, res.Modified, 1)
	assert.Equal(t,
		"🔄 予定変更:\n📝 Dinner\n📍 Bistro\n🕒 2024/01/10 19:00 ~ 2024/01/10 21:00\n"+
			"🔸 *予定名変更:* 「Lunch」→「Dinner」\n"+
			"🔸 *時間変更:* 2024/01/10 12:00 ~ 2024/01/10 13:00 → 2024/01/10 19:00 ~ 2024/01/10 21:00\n"+
			"🔸 *場所変更:* 「Cafe」→「Bistro」",
		res.Modified[0])
}

func TestReconcileEndOnlyChangeIsTimeChange(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
	}
	longer := lunch()
	longer.End = at(14, 0)

	res := Reconcile(prev, []Event{longer})

	require.Len(t, res.Modified, 1)
	assert.Contains(t, res.Modified[0], "🔸 *時間変更:* 2024/01/10 12:00 ~ 2024/01/10 13:00 → 2024/01/10 12:00 ~ 2024/01/10 14:00")
}

func TestReconcileLocationDefault(t *testing.T) {
	t.Run("unset on both sides", func(t *testing.T) {
		prev := Snapshot{{ID: "e1", Title: "Call", Start: "2024/01/10 15:00", End: "2024/01/10 15:30", Kind: KindTimed}}
		live := []Event{{ID: "e1", Title: "Call", Start: at(15, 0), End: at(15, 30)}}

		res := Reconcile(prev, live)

		assert.False(t, res.HasChanges())
		assert.Equal(t, NoLocation, res.Snapshot[0].Location)
	})

	t.Run("none to value", func(t *testing.T) {
		prev := Snapshot{{ID: "e1", Title: "Call", Start: "2024/01/10 15:00", End: "2024/01/10 15:30", Location: NoLocation, Kind: KindTimed}}
		live := []Event{{ID: "e1", Title: "Call", Start: at(15, 0), End: at(15, 30), Location: "Zoom"}}

		res := Reconcile(prev, live)

		require.Len(t, res.Modified, 1)
		assert.Contains(t, res.Modified[0], "🔸 *場所変更:* 「なし」→「Zoom」")
	})

	t.Run("value to none", func(t *testing.T) {
		prev := Snapshot{{ID: "e1", Title: "Call", Start: "2024/01/10 15:00", End: "2024/01/10 15:30", Location: "Zoom", Kind: KindTimed}}
		live := []Event{{ID: "e1", Title: "Call", Start: at(15, 0), End: at(15, 30)}}

		res := Reconcile(prev, live)

		require.Len(t, res.Modified, 1)
		assert.Contains(t, res.Modified[0], "「Zoom」→「なし」")
	})
}

func TestReconcileDuplicateStoredIDLastWins(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Stale", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
		{ID: "e2", Title: "Other", Start: "2024/01/10 08:00", End: "2024/01/10 09:00", Location: "Home", Kind: KindTimed},
		{ID: "e1", Title: "Lunch", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: "Cafe", Kind: KindTimed},
	}

	res := Reconcile(prev, []Event{lunch()})

	assert.Empty(t, res.Modified)
	require.Len(t, res.Deleted, 1)
	assert.Contains(t, res.Deleted[0], "Other")
}

func TestReconcileDeletedOrderFollowsSnapshot(t *testing.T) {
	var prev Snapshot
	for _, id := range []string{"d", "b", "e", "a", "c"} {
		prev = append(prev, Row{ID: id, Title: "T-" + id, Start: "2024/01/10", End: "2024/01/11", Kind: KindAllDay})
	}

	res := Reconcile(prev, nil)

	require.Len(t, res.Deleted, 5)
	for i, id := range []string{"d", "b", "e", "a", "c"} {
		assert.Contains(t, res.Deleted[i], "📝 T-"+id+"\n")
	}
	assert.Empty(t, res.Snapshot)
}

func TestReconcileRenormalizesStoredCells(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Lunch", Start: "2024-01-10T12:00:00Z", End: "2024/01/10 13:00:00", Location: "Cafe", Kind: "unknown"},
	}

	res := Reconcile(prev, []Event{lunch()})

	assert.False(t, res.HasChanges())
}

func TestReconcileKindChangeShowsAsTimeChange(t *testing.T) {
	prev := Snapshot{
		{ID: "e1", Title: "Trip", Start: "2024/01/10 12:00", End: "2024/01/10 13:00", Location: NoLocation, Kind: KindTimed},
	}
	live := []Event{{ID: "e1", Title: "Trip", Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1), AllDay: true}}

	res := Reconcile(prev, live)

	require.Len(t, res.Modified, 1)
	assert.Contains(t, res.Modified[0], "🔸 *時間変更:* 2024/01/10 12:00 ~ 2024/01/10 13:00 → 2024/01/10 ~ 2024/01/11")
	assert.Equal(t, KindAllDay, res.Snapshot[0].Kind)
}

func ids(s Snapshot) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, r.ID)
	}
	return out
}
