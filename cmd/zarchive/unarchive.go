package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/zarchive/internal/archive"
	"github.com/BadgerOps/zarchive/internal/store"
)

func newUnarchiveCmd() *cobra.Command {
	var (
		req    archive.UnarchiveRequest
		flags  requestFlags
		params string
	)

	cmd := &cobra.Command{
		Use:   "unarchive",
		Short: "Unpack an archive file or data set",
		Long: `Unpack --src into --dest. Every member of a USS archive is checked before
anything is written: absolute names, names escaping the destination and
links pointing outside it are refused.

For MVS archives packed with --use-adrdssu the data sets are restored under
their original names; --include and --exclude select data sets by name or
pattern. --list reports the contents without changing anything.

Unless --remote-src=false is given the source archive is kept; with
--remote-src=false it is treated as an uploaded copy and deleted afterwards.`,
		Example: `  zarchive unarchive --src /u/user/out.tar.gz --format gz --dest /u/user/restore
  zarchive unarchive --src /u/user/out.zip --format zip --include a.txt --list
  zarchive unarchive --src USER.SRC.TRS --format terse --use-adrdssu --force
  zarchive unarchive --params unarchive.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if params != "" {
				if err := onlyParams(cmd); err != nil {
					return err
				}
				// remote_src defaults to true when the document omits it
				req = archive.UnarchiveRequest{RemoteSrc: true}
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
			return unarchiveRun(cmd, req)
		},
	}

	cmd.Flags().StringVar(&req.Src, "src", "", "archive file or data set to unpack")
	cmd.Flags().StringVar(&req.Dest, "dest", "", "directory or data set to unpack into")
	cmd.Flags().StringSliceVar(&req.Include, "include", nil, "members or data sets to extract")
	cmd.Flags().StringSliceVar(&req.Exclude, "exclude", nil, "members or data sets to skip")
	cmd.Flags().BoolVar(&req.List, "list", false, "list the archive contents without extracting")
	cmd.Flags().BoolVar(&req.RemoteSrc, "remote-src", true, "the archive already lives on this system and is kept")
	cmd.Flags().StringVar(&params, "params", "", "YAML or JSON request document instead of flags")
	flags.bind(cmd)

	return cmd
}

func unarchiveRun(cmd *cobra.Command, req archive.UnarchiveRequest) error {
	if globalArchiver == nil {
		return fmt.Errorf("archiver not initialized")
	}

	run := startRun("unarchive", req.Format.Type, []string{req.Src}, req.Dest)
	res, err := globalArchiver.Unarchive(cmd.Context(), req)
	finishRun(run, err, func(r *store.Run) {
		r.Dest = res.DestPath
		r.Changed = res.Changed
		r.Targets = len(res.Targets)
		r.Missing = len(res.Missing)
	})
	return report(cmd.OutOrStdout(), res, err)
}
