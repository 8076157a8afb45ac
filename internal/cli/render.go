package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/pushgateway"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	faintStyle = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// tokenWidth は表に表示するトークンの最大幅。
const tokenWidth = 44

func statusStyle(status string) lipgloss.Style {
	switch pushgateway.TicketStatus(status) {
	case pushgateway.TicketOK:
		return okStyle
	case pushgateway.TicketError:
		return errStyle
	}
	return warnStyle
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func rule(w io.Writer, n int) {
	fmt.Fprintln(w, faintStyle.Render(strings.Repeat("─", n)))
}

// renderDispatchResult は送信結果をトークンごとの表で出力する。
func renderDispatchResult(w io.Writer, r *dispatch.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("通知 %d の送信結果", r.NotificationID)))
	switch r.Outcome {
	case dispatch.OutcomeNoRecipients:
		fmt.Fprintln(w, warnStyle.Render("宛先のトークンがありません。状態は変更していません"))
		return
	case dispatch.OutcomeNoValidTokens:
		fmt.Fprintln(w, warnStyle.Render("有効なトークンがありません。状態は変更していません"))
		return
	}

	fmt.Fprintf(w, "%s %s\n", faintStyle.Render("dispatch_id:"), r.DispatchID)
	fmt.Fprintf(w, "%-*s  %-8s  %s\n", tokenWidth, "TOKEN", "STATUS", "DETAIL")
	rule(w, tokenWidth+30)
	for _, d := range r.Deliveries {
		detail := d.TicketID
		if d.Error != "" {
			detail = d.Error
		}
		fmt.Fprintf(w, "%-*s  %s  %s\n",
			tokenWidth, truncate(d.PushToken, tokenWidth),
			statusStyle(string(d.Status)).Render(fmt.Sprintf("%-8s", d.Status)),
			detail)
	}
	rule(w, tokenWidth+30)
	fmt.Fprintf(w, "送信: %d件 / チャンク: %d / エラー: %d件\n", r.SentCount, r.ChunkCount, r.FailedTickets())
}

// renderHistory は配信履歴を表で出力する。
func renderHistory(w io.Writer, rows []notificationdb.ListHistoryRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, faintStyle.Render("配信履歴はありません"))
		return
	}

	fmt.Fprintf(w, "%-6s  %-6s  %-20s  %-*s  %-8s  %s\n", "ID", "NOTIF", "SENT_AT", tokenWidth, "TOKEN", "STATUS", "TITLE")
	rule(w, tokenWidth+70)
	for _, r := range rows {
		fmt.Fprintf(w, "%-6d  %-6d  %-20s  %-*s  %s  %s\n",
			r.ID, r.NotificationID,
			r.SentAt.UTC().Format(time.DateTime),
			tokenWidth, truncate(r.PushToken, tokenWidth),
			statusStyle(r.DeliveryStatus).Render(fmt.Sprintf("%-8s", r.DeliveryStatus)),
			r.NotificationTitle.String)
		if r.ErrorMessage.Valid {
			fmt.Fprintf(w, "        %s\n", errStyle.Render(r.ErrorMessage.String))
		}
	}
}
