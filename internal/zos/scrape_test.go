package zos

import (
	"reflect"
	"strings"
	"testing"
)

const restoreSysprint = `1PAGE 0001     5695-DF175  DFSMSDSS V2R05.0 DATA SET SERVICES     2024.101 10:15
 RESTORE INDDNAME(ARCHIVE) -
 DS(INCL(**)) -
 CATALOG
ADR101I (R/I)-RI01 (01), TASKID 001 HAS BEEN ASSIGNED TO COMMAND 'RESTORE'
ADR109I (R/I)-RI01 (01), 2024.101 10:15:01 INITIAL SCAN OF USER INPUT SUCCESSFULLY COMPLETED
ADR454I (001)-DDDRO(01), THE FOLLOWING DATA SETS WERE SUCCESSFULLY PROCESSED
                           USER.ARCHIVE1.TEST
                           USER.ARCHIVE2.TEST
ADR455W (001)-DDDRO(02), THE FOLLOWING DATA SETS WERE NOT PROCESSED
                           USER.LOCKED.DATA  DUE TO ENQUEUE FAILURE
ADR006I (001)-STEND(02), 2024.101 10:15:03 EXECUTION ENDS
ADR013I (001)-CLTSK(01), 2024.101 10:15:03 TASK COMPLETED WITH RETURN CODE 0008
`

func TestParseDumpRestore(t *testing.T) {
	processed, notProcessed := ParseDumpRestore(restoreSysprint)

	wantProcessed := []string{"USER.ARCHIVE1.TEST", "USER.ARCHIVE2.TEST"}
	if !reflect.DeepEqual(processed, wantProcessed) {
		t.Errorf("processed = %v, want %v", processed, wantProcessed)
	}
	wantNot := []string{"USER.LOCKED.DATA"}
	if !reflect.DeepEqual(notProcessed, wantNot) {
		t.Errorf("notProcessed = %v, want %v", notProcessed, wantNot)
	}
}

func TestParseDumpRestoreNoSections(t *testing.T) {
	processed, notProcessed := ParseDumpRestore("ADR013I (001)-CLTSK(01), TASK COMPLETED WITH RETURN CODE 0000\n")
	if len(processed) != 0 || len(notProcessed) != 0 {
		t.Fatalf("expected no names, got %v / %v", processed, notProcessed)
	}
}

func TestParseAbend(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantAbend  string
		wantReason string
		wantOK     bool
	}{
		{
			name:       "system abend",
			output:     "INMR003I TRANSMIT ENDED\nIKJ79154I ABEND CODE SYSTEM D37 REASON CODE 00000004\n",
			wantAbend:  "D37",
			wantReason: "4",
			wantOK:     true,
		},
		{
			name:       "equals form",
			output:     "ABEND CODE=913 REASON CODE=38",
			wantAbend:  "913",
			wantReason: "38",
			wantOK:     true,
		},
		{
			name:   "no abend",
			output: "INMX000I 0 message and 20 data records sent\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abend, reason, ok := ParseAbend(tt.output)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if abend != tt.wantAbend || reason != tt.wantReason {
				t.Errorf("got (%q, %q), want (%q, %q)", abend, reason, tt.wantAbend, tt.wantReason)
			}
		})
	}
}

func TestAbendHint(t *testing.T) {
	hint, ok := AbendHint("d37", "4")
	if !ok {
		t.Fatal("expected a hint for D37/4")
	}
	if !strings.Contains(hint, "space") {
		t.Errorf("hint %q does not mention space", hint)
	}
	if _, ok := AbendHint("0C4", "11"); ok {
		t.Error("expected no hint for unknown abend")
	}
}

func TestParseChecksum(t *testing.T) {
	const digest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{"key value", "SHA256 (//'USER.DATA') = " + digest + "\n", false},
		{"uppercase digest", "digest = " + strings.ToUpper(digest), false},
		{"plain", digest + "  //'USER.DATA'\n", false},
		{"garbage", "sha256: cannot open data set\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChecksum(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != digest {
				t.Errorf("got %q, want %q", got, digest)
			}
		})
	}
}

func TestParseLongListing(t *testing.T) {
	out := "USER.ARCHIVE1.TEST PS FB 80 27920 VOL001 1658880\nUSER.LIB PO-E FB 80 32720 VOL002 56664\n"
	sets, err := parseLongListing(out)
	if err != nil {
		t.Fatalf("parseLongListing: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 data sets, got %d", len(sets))
	}
	if sets[0].Type != TypeSequential || sets[0].AllocatedBytes != 1658880 || sets[0].RecordLength != 80 {
		t.Errorf("unexpected first entry: %+v", sets[0])
	}
	if sets[1].Type != TypePDSE || sets[1].Volume != "VOL002" {
		t.Errorf("unexpected second entry: %+v", sets[1])
	}

	if _, err := parseLongListing("USER.SHORT PS\n"); err == nil {
		t.Error("expected error for truncated line")
	}
}

func TestBuildDumpCommand(t *testing.T) {
	got := BuildDumpCommand([]string{"user.a", "USER.B"}, false)
	want := " DUMP OUTDDNAME(ARCHIVE) -\n" +
		" OPTIMIZE(4) DS(INCL( -\n" +
		"  USER.A, -\n" +
		"  USER.B -\n" +
		" ))\n"
	if got != want {
		t.Errorf("BuildDumpCommand() =\n%s\nwant\n%s", got, want)
	}

	forced := BuildDumpCommand([]string{"USER.A"}, true)
	if !strings.HasSuffix(forced, " )) -\n TOL(ENQF IOER)\n") {
		t.Errorf("forced dump missing tolerance flags:\n%s", forced)
	}
}

func TestBuildRestoreCommand(t *testing.T) {
	tests := []struct {
		name string
		opts RestoreOptions
		want []string
	}{
		{"defaults", RestoreOptions{}, []string{"DS(INCL(**))", "CATALOG"}},
		{"include", RestoreOptions{Include: []string{"user.a", "user.b"}}, []string{"DS(INCL(USER.A,USER.B))"}},
		{"exclude", RestoreOptions{Exclude: []string{"USER.X"}}, []string{"DS(INCL(**) EXCL(USER.X))"}},
		{"volumes", RestoreOptions{Volumes: []string{"vol1", "VOL2"}}, []string{"OUTDYNAM((VOL1),(VOL2))"}},
		{"force", RestoreOptions{Force: true}, []string{"REPLACE TOLERATE(ENQFAILURE)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildRestoreCommand(tt.opts)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("command missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestTransmitCommands(t *testing.T) {
	got := TransmitCommands("user.src", "user.dest.xmit", "")
	if got[0] != "PROFILE NOPREFIX" {
		t.Errorf("first command = %q, want PROFILE NOPREFIX", got[0])
	}
	if !strings.HasSuffix(got[1], "NOLOG") {
		t.Errorf("expected NOLOG, got %q", got[1])
	}
	withLog := TransmitCommands("USER.SRC", "USER.DEST", "user.xmit.log")
	if !strings.Contains(withLog[1], "LOGDSNAME('USER.XMIT.LOG')") {
		t.Errorf("expected LOGDSNAME, got %q", withLog[1])
	}
}

func TestSplitMember(t *testing.T) {
	tests := []struct {
		in         string
		base, memb string
		ok         bool
	}{
		{"USER.LIB(MEM1)", "USER.LIB", "MEM1", true},
		{"USER.GDG(-1)", "", "", false},
		{"USER.SEQ", "", "", false},
	}
	for _, tt := range tests {
		base, memb, ok := SplitMember(tt.in)
		if base != tt.base || memb != tt.memb || ok != tt.ok {
			t.Errorf("SplitMember(%q) = (%q, %q, %v)", tt.in, base, memb, ok)
		}
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "sha256", Args: []string{"//'USER.DATA'"}}
	if got := c.String(); !strings.HasPrefix(got, "sha256 ") || !strings.Contains(got, "USER.DATA") {
		t.Errorf("String() = %q", got)
	}
}
