package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/zarchive/internal/archive"
	"github.com/BadgerOps/zarchive/internal/store"
)

func newArchiveCmd() *cobra.Command {
	var (
		req    archive.Request
		flags  requestFlags
		params string
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Pack USS files or MVS data sets into an archive",
		Long: `Pack the sources named by --src into --dest. USS paths (starting with
/, ~ or .) are packed with tar, gz, bz2, pax or zip; data set names are
packed with terse or xmit, and several data sets need --use-adrdssu.

Sources may be glob patterns (USS) or catalog patterns and relative
generations (MVS). Sources that do not exist are reported under "missing"
and the destination state becomes "incomplete".`,
		Example: `  zarchive archive --src /u/user/a.txt,/u/user/dir --dest /u/user/out.zip --format zip
  zarchive archive --src 'USER.SRC.*' --exclude USER.SRC.OLD --dest USER.SRC.TRS --format terse --use-adrdssu
  zarchive archive --src USER.SEQ --dest USER.SEQ.XMIT --format xmit --remove
  zarchive archive --params archive.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if params != "" {
				if err := onlyParams(cmd); err != nil {
					return err
				}
				req = archive.Request{}
				if err := loadParams(params, &req); err != nil {
					return err
				}
			} else {
				req.Format = flags.formatValue()
				req.DestDataSet = flags.destDataSet()
				req.Encoding = flags.encoding()
				req.Permissions = flags.perms
				req.TmpHLQ = flags.tmpHLQ
				req.Force = flags.force
			}
			return archiveRun(cmd, req)
		},
	}

	cmd.Flags().StringSliceVar(&req.Src, "src", nil, "sources to archive (paths, data set names or patterns)")
	cmd.Flags().StringVar(&req.Dest, "dest", "", "archive file or data set to create")
	cmd.Flags().StringSliceVar(&req.Exclude, "exclude", nil, "sources to leave out (patterns allowed)")
	cmd.Flags().BoolVar(&req.Remove, "remove", false, "remove sources after they were archived")
	cmd.Flags().StringVar(&params, "params", "", "YAML or JSON request document instead of flags")
	flags.bind(cmd)

	return cmd
}

func archiveRun(cmd *cobra.Command, req archive.Request) error {
	if globalArchiver == nil {
		return fmt.Errorf("archiver not initialized")
	}
	ctx := cmd.Context()

	run := startRun("archive", req.Format.Type, req.Src, req.Dest)
	res, err := globalArchiver.Archive(ctx, req)
	finishRun(run, err, func(r *store.Run) {
		r.Dest = res.Dest
		r.State = string(res.State)
		r.DestState = string(res.DestState)
		r.Changed = res.Changed
		r.Targets = len(res.Archived)
		r.Missing = len(res.Missing)
		if err == nil {
			r.DestBytes = destBytes(ctx, res.Dest)
		}
	})
	return report(cmd.OutOrStdout(), res, err)
}
