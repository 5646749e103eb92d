package outage

import (
	"strconv"
	"strings"
	"time"
)

// User-facing text is Russian; the product runs in MSK.
var mskZone = time.FixedZone("MSK", 3*60*60)

const noReward = "—"

// FormatStartTime renders an epoch timestamp as wall-clock time in MSK,
// e.g. "18:30 МСК".
func FormatStartTime(ts int64) string {
	return time.Unix(ts, 0).In(mskZone).Format("15:04") + " МСК"
}

// FormatRemaining renders a duration in seconds as the largest non-zero
// day/hour/minute units, e.g. "1 дн. 1 ч." for 90000s. Sub-minute and
// non-positive durations collapse to "меньше минуты".
func FormatRemaining(seconds int64) string {
	if seconds <= 0 {
		return "меньше минуты"
	}
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	minutes %= 60
	hours %= 24

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+" дн.")
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+" ч.")
	}
	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+" мин.")
	}
	if len(parts) == 0 {
		return "меньше минуты"
	}
	return strings.Join(parts, " ")
}

// RenderMessage builds the recipient-independent notification body for
// a due reminder. The start kind announces the outage as begun; every
// other kind carries the remaining time computed against dispatch time.
func RenderMessage(r DueReminder, now int64) string {
	reward := noReward
	if r.Reward != nil && *r.Reward != "" {
		reward = *r.Reward
	}
	startsAt := FormatStartTime(r.StartsAt)

	if r.Kind == KindStart {
		return strings.Join([]string{
			"💥 СБОЙ НАЧАЛСЯ",
			"📌 " + r.Name,
			"⏱ Время ограничено",
			"🎟 Вход — за Crash",
			"🏆 Награда: " + reward,
			"🕒 Время начала: " + startsAt,
		}, "\n")
	}

	remaining := FormatRemaining(r.StartsAt - now)
	return strings.Join([]string{
		"⚠️ Обнаружена аномалия",
		"📌 " + r.Name,
		"💥 Сбой начнется через " + remaining,
		"🏆 Награда: " + reward,
		"🕒 Время начала: " + startsAt,
	}, "\n")
}
