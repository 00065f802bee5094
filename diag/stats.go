package diag

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tinyos/accnt"
	"tinyos/ustr"
)

// ProcessReport is one line of a formatted usage report.
type ProcessReport struct {
	Pid   int
	Name  ustr.Ustr
	Usage accnt.Usage
}

// FormatReport renders a usage report with thousands separators, the
// way an operator-facing summary should read rather than a raw struct
// dump -- the printer-based formatting the teacher's own CLI entry
// points use for anything shown to a human.
func FormatReport(reports []ProcessReport) string {
	p := message.NewPrinter(language.English)
	out := ""
	for _, r := range reports {
		out += p.Sprintf("pid %6d  %-16s  owned=%-10d borrowed=%-10d shared-out=%-14d shared-in=%d\n",
			r.Pid, r.Name.String(), r.Usage.OwnedPages, r.Usage.BorrowedPages,
			r.Usage.SharedBytesOut, r.Usage.SharedBytesIn)
	}
	return out
}

// FormatAudit renders an audit trail for display. Failed calls get
// their recorded stack trace appended, indented, so a reader can see
// where a bad map_shared_pages/unmap_shared_pages call came from
// without re-running it under a debugger.
func FormatAudit(events []AuditEvent) string {
	p := message.NewPrinter(language.English)
	out := ""
	for _, e := range events {
		out += p.Sprintf("%s src=%d dst=%d va=%#x pages=%d errno=%d\n",
			e.Op, e.SrcPid, e.DstPid, e.VA, e.NPages, int(e.Errno))
		if e.Trace != "" {
			out += "\tat " + e.Trace + "\n"
		}
	}
	return out
}
