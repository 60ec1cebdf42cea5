// Package archive packs USS files and MVS data sets into archives and
// unpacks them again.
package archive

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// FormatType names an archive format.
type FormatType string

const (
	FormatTar   FormatType = "tar"
	FormatGz    FormatType = "gz"
	FormatBz2   FormatType = "bz2"
	FormatPax   FormatType = "pax"
	FormatZip   FormatType = "zip"
	FormatTerse FormatType = "terse"
	FormatXmit  FormatType = "xmit"
)

// FormatOptions are per-format knobs. Only the ones relevant to the chosen
// format are read.
type FormatOptions struct {
	// Spack selects AMATERSE SPACK over PACK.
	Spack          bool     `json:"spack" yaml:"spack"`
	XmitLogDataSet string   `json:"xmit_log_data_set" yaml:"xmit_log_data_set"`
	UseADRDSSU     bool     `json:"use_adrdssu" yaml:"use_adrdssu"`
	ADRDSSU        bool     `json:"adrdssu" yaml:"adrdssu"`
	DestVolumes    []string `json:"dest_volumes" yaml:"dest_volumes"`
}

// UsesADRDSSU reports whether either spelling of the ADRDSSU flag is set.
func (o FormatOptions) UsesADRDSSU() bool {
	return o.UseADRDSSU || o.ADRDSSU
}

// Format is the requested archive format and its options.
type Format struct {
	Type    FormatType    `json:"type" yaml:"type"`
	Options FormatOptions `json:"options" yaml:"options"`
}

// DestDataSet holds allocation attributes for an MVS destination. They are
// used only when the destination has to be created.
type DestDataSet struct {
	Name            string          `json:"name" yaml:"name"`
	Type            zos.DataSetType `json:"type" yaml:"type"`
	SpacePrimary    int             `json:"space_primary" yaml:"space_primary"`
	SpaceSecondary  int             `json:"space_secondary" yaml:"space_secondary"`
	SpaceType       string          `json:"space_type" yaml:"space_type"`
	RecordFormat    string          `json:"record_format" yaml:"record_format"`
	RecordLength    int             `json:"record_length" yaml:"record_length"`
	BlockSize       int             `json:"block_size" yaml:"block_size"`
	DirectoryBlocks int             `json:"directory_blocks" yaml:"directory_blocks"`
	StorageClass    string          `json:"sms_storage_class" yaml:"sms_storage_class"`
	DataClass       string          `json:"sms_data_class" yaml:"sms_data_class"`
	ManagementClass string          `json:"sms_management_class" yaml:"sms_management_class"`
	Volumes         []string        `json:"volumes" yaml:"volumes"`
}

func (d DestDataSet) allocSpec(name string) zos.AllocSpec {
	return zos.AllocSpec{
		Name:            name,
		Type:            d.Type,
		SpacePrimary:    d.SpacePrimary,
		SpaceSecondary:  d.SpaceSecondary,
		SpaceType:       strings.ToUpper(d.SpaceType),
		RecordFormat:    strings.ToUpper(d.RecordFormat),
		RecordLength:    d.RecordLength,
		BlockSize:       d.BlockSize,
		DirectoryBlocks: d.DirectoryBlocks,
		StorageClass:    d.StorageClass,
		DataClass:       d.DataClass,
		ManagementClass: d.ManagementClass,
		Volumes:         d.Volumes,
	}
}

// Encoding asks for sources to be converted between charsets.
type Encoding struct {
	From         string   `json:"from" yaml:"from"`
	To           string   `json:"to" yaml:"to"`
	SkipEncoding []string `json:"skip_encoding" yaml:"skip_encoding"`
}

// Permissions are applied to USS outputs after a run.
type Permissions struct {
	Mode  string `json:"mode" yaml:"mode"`
	Owner string `json:"owner" yaml:"owner"`
	Group string `json:"group" yaml:"group"`
}

func (p Permissions) empty() bool {
	return p.Mode == "" && p.Owner == "" && p.Group == ""
}

// Request describes one archive run.
type Request struct {
	Src         []string    `json:"src" yaml:"src"`
	Dest        string      `json:"dest" yaml:"dest"`
	Exclude     []string    `json:"exclude" yaml:"exclude"`
	Format      Format      `json:"format" yaml:"format"`
	DestDataSet DestDataSet `json:"dest_data_set" yaml:"dest_data_set"`
	Encoding    *Encoding   `json:"encoding" yaml:"encoding"`
	Force       bool        `json:"force" yaml:"force"`
	Remove      bool        `json:"remove" yaml:"remove"`
	TmpHLQ      string      `json:"tmp_hlq" yaml:"tmp_hlq"`
	Permissions `yaml:",inline"`
}

// UnarchiveRequest describes one unarchive run.
type UnarchiveRequest struct {
	Src         string      `json:"src" yaml:"src"`
	Dest        string      `json:"dest" yaml:"dest"`
	Format      Format      `json:"format" yaml:"format"`
	Include     []string    `json:"include" yaml:"include"`
	Exclude     []string    `json:"exclude" yaml:"exclude"`
	List        bool        `json:"list" yaml:"list"`
	Force       bool        `json:"force" yaml:"force"`
	RemoteSrc   bool        `json:"remote_src" yaml:"remote_src"`
	DestDataSet DestDataSet `json:"dest_data_set" yaml:"dest_data_set"`
	Encoding    *Encoding   `json:"encoding" yaml:"encoding"`
	TmpHLQ      string      `json:"tmp_hlq" yaml:"tmp_hlq"`
	Permissions `yaml:",inline"`
}

// Storage is the kind of object a name refers to.
type Storage int

const (
	StorageUSS Storage = iota
	StorageMVS
)

func (s Storage) String() string {
	if s == StorageMVS {
		return "MVS"
	}
	return "USS"
}

// StorageOf classifies a name. USS paths start with "/", "~" or ".";
// everything else is a data set name.
func StorageOf(name string) Storage {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".") {
		return StorageUSS
	}
	return StorageMVS
}

// Validate checks the request before any work is done.
func (r Request) Validate() error {
	if len(r.Src) == 0 {
		return fmt.Errorf("src is required")
	}
	if r.Dest == "" {
		return fmt.Errorf("dest is required")
	}
	v, err := lookupFormat(r.Format)
	if err != nil {
		return err
	}
	for _, s := range r.Src {
		if StorageOf(s) != v.storage() {
			return fmt.Errorf("source %s is not a %s name; format %s requires %s sources",
				s, v.storage(), r.Format.Type, v.storage())
		}
	}
	if StorageOf(r.Dest) != v.storage() {
		return fmt.Errorf("dest %s is not a %s name; format %s requires a %s destination",
			r.Dest, v.storage(), r.Format.Type, v.storage())
	}
	return validateEncoding(r.Encoding)
}

// Validate checks the request before any work is done.
func (r UnarchiveRequest) Validate() error {
	if r.Src == "" {
		return fmt.Errorf("src is required")
	}
	v, err := lookupFormat(r.Format)
	if err != nil {
		return err
	}
	if StorageOf(r.Src) != v.storage() {
		return fmt.Errorf("src %s is not a %s name; format %s requires %s input",
			r.Src, v.storage(), r.Format.Type, v.storage())
	}
	if len(r.Include) > 0 && len(r.Exclude) > 0 {
		return ErrIncludeExclude
	}
	return validateEncoding(r.Encoding)
}

func validateEncoding(e *Encoding) error {
	if e == nil {
		return nil
	}
	if e.From == "" || e.To == "" {
		return fmt.Errorf("encoding needs both from and to")
	}
	return nil
}
