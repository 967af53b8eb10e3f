package detect

import (
	"fmt"
	"strings"
)

func renderCreated(r Row) string {
	return fmt.Sprintf("🆕 新しい予定:\n📝 %s\n📍 %s\n🕒 %s ~ %s", r.Title, r.Location, r.Start, r.End)
}

func renderModified(r Row, changes []string) string {
	return fmt.Sprintf("🔄 予定変更:\n📝 %s\n📍 %s\n🕒 %s ~ %s\n", r.Title, r.Location, r.Start, r.End) +
		strings.Join(changes, "\n")
}

func renderDeleted(r Row) string {
	return fmt.Sprintf("❌ 予定削除:\n📝 %s\n📍 %s\n🕒 %s ~ %s", r.Title, r.Location, r.Start, r.End)
}

func titleChange(prev, cur Row) string {
	return fmt.Sprintf("🔸 *予定名変更:* 「%s」→「%s」", prev.Title, cur.Title)
}

func timeChange(prev, cur Row) string {
	return fmt.Sprintf("🔸 *時間変更:* %s ~ %s → %s ~ %s", prev.Start, prev.End, cur.Start, cur.End)
}

func locationChange(prev, cur Row) string {
	return fmt.Sprintf("🔸 *場所変更:* 「%s」→「%s」", prev.Location, cur.Location)
}
