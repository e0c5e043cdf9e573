package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys shared by notifications and command replies.
const (
	MsgLinkIssued          = "link.issued"
	MsgLinkExisting        = "link.existing"
	MsgLinkFailed          = "link.failed"
	MsgProgress            = "referral.progress"
	MsgCompleted           = "referral.completed"
	MsgAdminCompleted      = "referral.admin_completed"
	MsgDeparted            = "referral.departed"
	MsgMissionWarning      = "mission.warning"
	MsgMissionExpired      = "mission.expired"
	MsgMissionReactivated  = "mission.reactivated"
	MsgNotAdmin            = "admin.forbidden"
	MsgReactivateUsage     = "admin.reactivate_usage"
	MsgReactivateUnknown   = "admin.reactivate_unknown"
	MsgReactivateDone      = "admin.reactivate_done"
	MsgReactivateFailed    = "admin.reactivate_failed"
	MsgStatusEmpty         = "status.empty"
	MsgStatusInProgress    = "status.in_progress"
	MsgStatusCompleted     = "status.completed"
	MsgStatusLine          = "status.line"
	MsgStatusLineWithDates = "status.line_deadline"
)

const (
	LangPersian = "fa"
	LangEnglish = "en"
)

const deadlineLayout = "2006-01-02 15:04 UTC"

var catalogs = map[string]map[string]string{
	LangPersian: {
		MsgLinkIssued:          "سلام! لینک اختصاصی شما:\n\n%s\n\nهر کسی با این لینک وارد کانال شود، شمارش می‌شود.",
		MsgLinkExisting:        "شما قبلاً لینک اختصاصی دارید:\n%s",
		MsgLinkFailed:          "خطا در ساخت لینک. لطفاً دوباره تلاش کنید.",
		MsgProgress:            "%d نفر از دعوت‌های شما وارد کانال شدند. %d نفر دیگر تا جایزه باقی مانده.",
		MsgCompleted:           "تبریک! شما به %d دعوت موفق رسیدید 🎉",
		MsgAdminCompleted:      "کاربر %s به %d دعوت موفق رسید.",
		MsgDeparted:            "%s کانال را ترک کرد. تعداد دعوت‌های موفق شما اکنون: %d. %d نفر دیگر تا جایزه باقی مانده.",
		MsgMissionWarning:      "مهلت ماموریت شما به پایان رسید اما %d ساعت فرصت اضافه دارید. %d نفر دیگر تا جایزه باقی مانده. مهلت نهایی: %s",
		MsgMissionExpired:      "مهلت ماموریت شما تمام شد. تعداد دعوت‌های موفق: %d.",
		MsgMissionReactivated:  "ماموریت شما دوباره فعال شد. مهلت جدید: %s",
		MsgNotAdmin:            "این دستور فقط برای مدیر است.",
		MsgReactivateUsage:     "استفاده: /reactivate <شناسه کاربر>",
		MsgReactivateUnknown:   "کاربر %s پیدا نشد.",
		MsgReactivateDone:      "ماموریت کاربر %s دوباره فعال شد.",
		MsgReactivateFailed:    "فعال‌سازی دوباره انجام نشد. لطفاً دوباره تلاش کنید.",
		MsgStatusEmpty:         "هنوز هیچ لینکی ساخته نشده است.",
		MsgStatusInProgress:    "در حال انجام (%d):",
		MsgStatusCompleted:     "تکمیل‌شده (%d):",
		MsgStatusLine:          "%s | %s | %d",
		MsgStatusLineWithDates: "%s | %s | %d | %s",
	},
	LangEnglish: {
		MsgLinkIssued:          "Hi! Your personal invite link:\n\n%s\n\nEveryone who joins the channel through it is counted for you.",
		MsgLinkExisting:        "You already have a personal invite link:\n%s",
		MsgLinkFailed:          "Could not create your invite link. Please try again.",
		MsgProgress:            "%d of your invitees joined the channel. %d more to go for the reward.",
		MsgCompleted:           "Congratulations! You reached %d successful invites 🎉",
		MsgAdminCompleted:      "User %s reached %d successful invites.",
		MsgDeparted:            "%s left the channel. Your successful invites are now %d. %d more to go for the reward.",
		MsgMissionWarning:      "Your mission window has ended, but you have %d extra hours. %d more to go for the reward. Final deadline: %s",
		MsgMissionExpired:      "Your mission has expired. Successful invites: %d.",
		MsgMissionReactivated:  "Your mission is active again. New deadline: %s",
		MsgNotAdmin:            "This command is for the admin only.",
		MsgReactivateUsage:     "Usage: /reactivate <user id>",
		MsgReactivateUnknown:   "User %s was not found.",
		MsgReactivateDone:      "Mission of user %s reactivated.",
		MsgReactivateFailed:    "Reactivation failed. Please try again.",
		MsgStatusEmpty:         "No invite links have been issued yet.",
		MsgStatusInProgress:    "In progress (%d):",
		MsgStatusCompleted:     "Completed (%d):",
		MsgStatusLine:          "%s | %s | %d",
		MsgStatusLineWithDates: "%s | %s | %d | %s",
	},
}

func init() {
	for lang, messages := range catalogs {
		tag := language.MustParse(lang)
		for key, text := range messages {
			if err := message.SetString(tag, key, text); err != nil {
				panic(fmt.Sprintf("registering message %s/%s: %v", lang, key, err))
			}
		}
	}
}

// SupportedLanguage reports whether lang has a catalog.
func SupportedLanguage(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// Renderer produces user-facing text in one language.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer returns a renderer for lang, falling back to Persian for
// languages without a catalog.
func NewRenderer(lang string) *Renderer {
	if !SupportedLanguage(lang) {
		lang = LangPersian
	}
	return &Renderer{printer: message.NewPrinter(language.MustParse(lang))}
}

// Text renders a catalog message.
func (r *Renderer) Text(key string, args ...any) string {
	return r.printer.Sprintf(key, args...)
}

// Render produces the message body for n.
func (r *Renderer) Render(n Notification) string {
	p := n.Params
	switch n.Kind {
	case KindProgress:
		return r.Text(MsgProgress, p.Count, p.Remaining)
	case KindCompleted:
		return r.Text(MsgCompleted, p.Threshold)
	case KindAdminCompleted:
		return r.Text(MsgAdminCompleted, p.ReferrerKey, p.Count)
	case KindDeparted:
		return r.Text(MsgDeparted, p.InviteeKey, p.Count, p.Remaining)
	case KindMissionWarning:
		return r.Text(MsgMissionWarning, int(p.Extension/time.Hour), p.Remaining, formatDeadline(p.Deadline))
	case KindMissionExpired:
		return r.Text(MsgMissionExpired, p.Count)
	case KindMissionReactivated:
		return r.Text(MsgMissionReactivated, formatDeadline(p.Deadline))
	default:
		return string(n.Kind)
	}
}

// StatusRow is one referrer line of the admin status report.
type StatusRow struct {
	ReferrerKey string
	InviteLink  string
	Count       int
	Completed   bool
	Deadline    *time.Time
}

// StatusReport renders the admin overview, in-progress referrers first, each
// group ordered by descending count then key.
func (r *Renderer) StatusReport(rows []StatusRow) string {
	if len(rows) == 0 {
		return r.Text(MsgStatusEmpty)
	}

	var inProgress, completed []StatusRow
	for _, row := range rows {
		if row.Completed {
			completed = append(completed, row)
		} else {
			inProgress = append(inProgress, row)
		}
	}

	var b strings.Builder
	b.WriteString(r.Text(MsgStatusInProgress, len(inProgress)))
	for _, row := range sortRows(inProgress) {
		b.WriteString("\n")
		b.WriteString(r.statusLine(row))
	}
	b.WriteString("\n\n")
	b.WriteString(r.Text(MsgStatusCompleted, len(completed)))
	for _, row := range sortRows(completed) {
		b.WriteString("\n")
		b.WriteString(r.statusLine(row))
	}
	return b.String()
}

func (r *Renderer) statusLine(row StatusRow) string {
	if row.Deadline != nil && !row.Completed {
		return r.Text(MsgStatusLineWithDates, row.ReferrerKey, row.InviteLink, row.Count, formatDeadline(*row.Deadline))
	}
	return r.Text(MsgStatusLine, row.ReferrerKey, row.InviteLink, row.Count)
}

func sortRows(rows []StatusRow) []StatusRow {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].ReferrerKey < rows[j].ReferrerKey
	})
	return rows
}

func formatDeadline(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(deadlineLayout)
}
