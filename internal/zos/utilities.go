package zos

import (
	"context"
	"fmt"
	"strings"
)

// DD binds a program's data definition name to a data set.
type DD struct {
	Name    string
	DataSet string // data set name, "*" for stdout, "stdin" for standard input
	Disp    string // shr, old, mod; empty for stream bindings
}

func (d DD) arg() string {
	v := d.DataSet
	if v != "*" && v != "stdin" {
		v = strings.ToUpper(v)
	}
	if d.Disp != "" {
		v += "," + d.Disp
	}
	return "--" + strings.ToLower(d.Name) + "=" + v
}

// RunProgram runs an authorized program with the given PARM and DD bindings.
// The returned Output carries the raw return code.
func (c *Client) RunProgram(ctx context.Context, pgm, parm string, dds []DD, stdin string) (Output, error) {
	args := []string{"--pgm=" + strings.ToUpper(pgm)}
	if parm != "" {
		args = append(args, "--args="+parm)
	}
	for _, dd := range dds {
		args = append(args, dd.arg())
	}
	return c.runner.Run(ctx, Command{Name: c.bin.MVSCmd, Args: args, Stdin: stdin})
}

// TSO runs TSO commands in batch through IKJEFT01, one command per line.
func (c *Client) TSO(ctx context.Context, commands ...string) (Output, error) {
	sysin := strings.Join(commands, "\n") + "\n"
	return c.RunProgram(ctx, "IKJEFT01", "", []DD{
		{Name: "systsprt", DataSet: "*"},
		{Name: "systsin", DataSet: "stdin"},
	}, sysin)
}

// TerseMode selects the AMATERSE function.
type TerseMode string

const (
	TersePack   TerseMode = "PACK"
	TerseSpack  TerseMode = "SPACK"
	TerseUnpack TerseMode = "UNPACK"
)

// Terse runs AMATERSE reading SYSUT1 and writing SYSUT2.
func (c *Client) Terse(ctx context.Context, mode TerseMode, in, out string) (Output, error) {
	res, err := c.RunProgram(ctx, "AMATERSE", string(mode), []DD{
		{Name: "sysut1", DataSet: in, Disp: "shr"},
		{Name: "sysut2", DataSet: out, Disp: "old"},
		{Name: "sysprint", DataSet: "*"},
	}, "")
	if err != nil {
		return res, err
	}
	if res.RC != 0 {
		return res, commandError("AMATERSE", res)
	}
	return res, nil
}

// TransmitCommands builds the SYSTSIN block for an XMIT of in into out.
func TransmitCommands(in, out, logDataSet string) []string {
	log := "NOLOG"
	if logDataSet != "" {
		log = fmt.Sprintf("LOGDSNAME('%s')", strings.ToUpper(logDataSet))
	}
	return []string{
		"PROFILE NOPREFIX",
		fmt.Sprintf("XMIT A.B DSNAME('%s') OUTDSNAME('%s') %s",
			strings.ToUpper(in), strings.ToUpper(out), log),
	}
}

// ReceiveCommands builds the SYSTSIN block restoring a transmission file.
func ReceiveCommands(in, out string) []string {
	return []string{
		"PROFILE NOPREFIX",
		fmt.Sprintf("RECEIVE INDSNAME('%s') NODISPLAY", strings.ToUpper(in)),
		fmt.Sprintf("DATASET('%s')", strings.ToUpper(out)),
	}
}

// Transmit packs a data set into TSO XMIT format.
func (c *Client) Transmit(ctx context.Context, in, out, logDataSet string) (Output, error) {
	res, err := c.TSO(ctx, TransmitCommands(in, out, logDataSet)...)
	if err != nil {
		return res, err
	}
	if res.RC != 0 {
		return res, commandError("XMIT", res)
	}
	return res, nil
}

// Receive unpacks a TSO XMIT transmission file into out.
func (c *Client) Receive(ctx context.Context, in, out string) (Output, error) {
	res, err := c.TSO(ctx, ReceiveCommands(in, out)...)
	if err != nil {
		return res, err
	}
	if res.RC != 0 {
		return res, commandError("RECEIVE", res)
	}
	return res, nil
}

// BuildDumpCommand builds the ADRDSSU DUMP control statement for sources.
// force adds the TOL(ENQF IOER) tolerance flags.
func BuildDumpCommand(sources []string, force bool) string {
	var b strings.Builder
	b.WriteString(" DUMP OUTDDNAME(ARCHIVE) -\n")
	b.WriteString(" OPTIMIZE(4) DS(INCL( -\n")
	for i, s := range sources {
		sep := ","
		if i == len(sources)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %s%s -\n", strings.ToUpper(s), sep)
	}
	if force {
		b.WriteString(" )) -\n TOL(ENQF IOER)\n")
	} else {
		b.WriteString(" ))\n")
	}
	return b.String()
}

// RestoreOptions controls an ADRDSSU RESTORE.
type RestoreOptions struct {
	Include []string
	Exclude []string
	Volumes []string
	Force   bool
	// NoRun lists the container's data sets without restoring them.
	NoRun bool
}

// BuildRestoreCommand builds the ADRDSSU RESTORE control statement.
func BuildRestoreCommand(opts RestoreOptions) string {
	incl := "**"
	if len(opts.Include) > 0 {
		incl = strings.ToUpper(strings.Join(opts.Include, ","))
	}
	filter := "INCL(" + incl + ")"
	if len(opts.Exclude) > 0 {
		filter += " EXCL(" + strings.ToUpper(strings.Join(opts.Exclude, ",")) + ")"
	}

	lines := []string{
		" RESTORE INDDNAME(ARCHIVE)",
		" DS(" + filter + ")",
		" CATALOG",
	}
	if len(opts.Volumes) > 0 {
		vols := make([]string, len(opts.Volumes))
		for i, v := range opts.Volumes {
			vols[i] = "(" + strings.ToUpper(v) + ")"
		}
		lines = append(lines, " OUTDYNAM("+strings.Join(vols, ",")+")")
	}
	if opts.Force {
		lines = append(lines, " REPLACE TOLERATE(ENQFAILURE)")
	}
	return strings.Join(lines, " -\n") + "\n"
}

// Dump runs ADRDSSU DUMP of sources into the sequential data set dest.
func (c *Client) Dump(ctx context.Context, sources []string, dest string, force bool) (Output, error) {
	res, err := c.RunProgram(ctx, "ADRDSSU", "", []DD{
		{Name: "archive", DataSet: dest, Disp: "old"},
		{Name: "sysin", DataSet: "stdin"},
		{Name: "sysprint", DataSet: "*"},
	}, BuildDumpCommand(sources, force))
	if err != nil {
		return res, err
	}
	if res.RC != 0 {
		return res, commandError("ADRDSSU", res)
	}
	return res, nil
}

// RestoreReport lists what a RESTORE did.
type RestoreReport struct {
	Processed    []string
	NotProcessed []string
	Output       Output
}

// Restore runs ADRDSSU RESTORE from the dump data set src.
// The report is filled even when the utility fails.
func (c *Client) Restore(ctx context.Context, src string, opts RestoreOptions) (*RestoreReport, error) {
	parm := ""
	if opts.NoRun {
		parm = "TYPRUN=NORUN"
	}
	res, err := c.RunProgram(ctx, "ADRDSSU", parm, []DD{
		{Name: "archive", DataSet: src, Disp: "old"},
		{Name: "sysin", DataSet: "stdin"},
		{Name: "sysprint", DataSet: "*"},
	}, BuildRestoreCommand(opts))
	if err != nil {
		return nil, err
	}
	report := &RestoreReport{Output: res}
	report.Processed, report.NotProcessed = ParseDumpRestore(res.Stdout)
	if res.RC != 0 {
		return report, commandError("ADRDSSU", res)
	}
	return report, nil
}
