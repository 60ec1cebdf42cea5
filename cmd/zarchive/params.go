package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/zarchive/internal/archive"
	"github.com/BadgerOps/zarchive/internal/zos"
)

// requestFlags are the flags shared by archive and unarchive.
type requestFlags struct {
	format       string
	options      archive.FormatOptions
	dds          archive.DestDataSet
	ddsType      string
	encFrom      string
	encTo        string
	skipEncoding []string
	perms        archive.Permissions
	tmpHLQ       string
	force        bool
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.format, "format", "", "archive format (tar, gz, bz2, pax, zip, terse, xmit)")
	fs.BoolVar(&f.options.Spack, "spack", false, "use AMATERSE SPACK instead of PACK (terse)")
	fs.StringVar(&f.options.XmitLogDataSet, "xmit-log-data-set", "", "data set receiving the XMIT log (xmit)")
	fs.BoolVar(&f.options.UseADRDSSU, "use-adrdssu", false, "wrap MVS sources in an ADRDSSU dump")
	fs.StringSliceVar(&f.options.DestVolumes, "dest-volumes", nil, "volumes for restored data sets")

	fs.StringVar(&f.dds.Name, "dest-data-set-name", "", "name of the unpacked data set (unarchive)")
	fs.StringVar(&f.ddsType, "dest-data-set-type", "", "data set type of the destination (seq, pds, pdse)")
	fs.IntVar(&f.dds.SpacePrimary, "space-primary", 0, "primary space of the destination")
	fs.IntVar(&f.dds.SpaceSecondary, "space-secondary", 0, "secondary space of the destination")
	fs.StringVar(&f.dds.SpaceType, "space-type", "", "unit of the space values (k, m, g, cyl, trk)")
	fs.StringVar(&f.dds.RecordFormat, "record-format", "", "record format of the destination")
	fs.IntVar(&f.dds.RecordLength, "record-length", 0, "record length of the destination")
	fs.IntVar(&f.dds.BlockSize, "block-size", 0, "block size of the destination")
	fs.IntVar(&f.dds.DirectoryBlocks, "directory-blocks", 0, "directory blocks of a partitioned destination")
	fs.StringVar(&f.dds.StorageClass, "sms-storage-class", "", "SMS storage class of the destination")
	fs.StringVar(&f.dds.DataClass, "sms-data-class", "", "SMS data class of the destination")
	fs.StringVar(&f.dds.ManagementClass, "sms-management-class", "", "SMS management class of the destination")
	fs.StringSliceVar(&f.dds.Volumes, "volumes", nil, "volumes for the destination allocation")

	fs.StringVar(&f.encFrom, "encoding-from", "", "charset the sources are in")
	fs.StringVar(&f.encTo, "encoding-to", "", "charset to convert to")
	fs.StringSliceVar(&f.skipEncoding, "skip-encoding", nil, "targets left in their original charset")

	fs.StringVar(&f.perms.Mode, "mode", "", "octal mode for USS outputs")
	fs.StringVar(&f.perms.Owner, "owner", "", "owner for USS outputs")
	fs.StringVar(&f.perms.Group, "group", "", "group for USS outputs")
	fs.StringVar(&f.tmpHLQ, "tmp-hlq", "", "high-level qualifier for temporary data sets")
	fs.BoolVar(&f.force, "force", false, "replace an existing destination")
}

func (f *requestFlags) formatValue() archive.Format {
	return archive.Format{Type: archive.FormatType(strings.ToLower(f.format)), Options: f.options}
}

func (f *requestFlags) destDataSet() archive.DestDataSet {
	d := f.dds
	d.Type = zos.DataSetType(strings.ToUpper(f.ddsType))
	return d
}

func (f *requestFlags) encoding() *archive.Encoding {
	if f.encFrom == "" && f.encTo == "" {
		return nil
	}
	return &archive.Encoding{From: f.encFrom, To: f.encTo, SkipEncoding: f.skipEncoding}
}

// loadParams decodes a YAML or JSON parameter document into v.
func loadParams(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading params: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing params %s: %w", path, err)
	}
	return nil
}

// onlyParams rejects request flags given alongside --params.
func onlyParams(cmd *cobra.Command) error {
	var extra []string
	// The returned set is rebuilt on each call; only Changed reflects parsing.
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed && f.Name != "params" {
			extra = append(extra, "--"+f.Name)
		}
	})
	if len(extra) > 0 {
		return fmt.Errorf("--params cannot be combined with %s", strings.Join(extra, ", "))
	}
	return nil
}

// destBytes sizes a destination for the history table. Errors yield 0.
func destBytes(ctx context.Context, dest string) int64 {
	if dest == "" {
		return 0
	}
	if archive.StorageOf(dest) == archive.StorageUSS {
		info, err := os.Stat(dest)
		if err != nil || info.IsDir() {
			return 0
		}
		return info.Size()
	}
	if globalClient == nil {
		return 0
	}
	ds, err := globalClient.Info(ctx, dest)
	if err != nil {
		return 0
	}
	return ds.AllocatedBytes
}
