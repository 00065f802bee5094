package diag

import (
	"bytes"
	"strings"
	"testing"

	"tinyos/accnt"
	"tinyos/defs"
	"tinyos/ustr"
)

func TestAuditRetainsMostRecent(t *testing.T) {
	a := NewAudit(2)
	a.Record(AuditEvent{Op: OpMap, SrcPid: 1, DstPid: 2, NPages: 1})
	a.Record(AuditEvent{Op: OpUnmap, DstPid: 2, NPages: 1})
	a.Record(AuditEvent{Op: OpMap, SrcPid: 3, DstPid: 2, NPages: 4})

	recent := a.Recent()
	if len(recent) != 2 {
		t.Fatalf("Recent() = %d events, want 2", len(recent))
	}
	if recent[0].Op != OpUnmap || recent[0].DstPid != 2 {
		t.Fatalf("oldest retained event wrong: %+v", recent[0])
	}
	if recent[1].SrcPid != 3 {
		t.Fatalf("newest event wrong: %+v", recent[1])
	}
}

func TestFormatReportIncludesCounters(t *testing.T) {
	reports := []ProcessReport{
		{Pid: 1, Name: ustr.MkUstr("init"), Usage: accnt.Usage{OwnedPages: 10, BorrowedPages: 2}},
	}
	out := FormatReport(reports)
	if !strings.Contains(out, "init") || !strings.Contains(out, "owned=10") {
		t.Fatalf("report missing expected fields: %q", out)
	}
}

func TestBorrowedProfileWritesWithoutError(t *testing.T) {
	reports := []ProcessReport{
		{Pid: 1, Name: ustr.MkUstr("a"), Usage: accnt.Usage{BorrowedPages: 3}},
		{Pid: 2, Name: ustr.MkUstr("b"), Usage: accnt.Usage{BorrowedPages: 0}},
	}
	p := BorrowedProfile(reports)
	var buf bytes.Buffer
	if err := WriteProfile(&buf, p); err != nil {
		t.Fatalf("WriteProfile: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty profile output")
	}
}

func TestFormatAuditRendersErrno(t *testing.T) {
	out := FormatAudit([]AuditEvent{{Op: OpMap, SrcPid: 1, DstPid: 2, NPages: 1, Errno: -defs.EFAULT}})
	if !strings.Contains(out, "map") {
		t.Fatalf("expected op name in output: %q", out)
	}
}

func TestFormatAuditRendersTraceOnFailure(t *testing.T) {
	out := FormatAudit([]AuditEvent{
		{Op: OpMap, SrcPid: 1, DstPid: 2, NPages: 1, Errno: -defs.EFAULT, Trace: "shmem/shmem_test.go:1"},
		{Op: OpUnmap, DstPid: 2, NPages: 1},
	})
	if !strings.Contains(out, "\tat shmem/shmem_test.go:1") {
		t.Fatalf("expected trace line in output: %q", out)
	}
	if strings.Count(out, "\tat ") != 1 {
		t.Fatalf("expected exactly one trace line, got: %q", out)
	}
}
