package zos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// DataSetType is the organization of a cataloged data set.
type DataSetType string

const (
	TypeSequential  DataSetType = "SEQ"
	TypePartitioned DataSetType = "PDS"
	TypePDSE        DataSetType = "PDSE"
	TypeMember      DataSetType = "MEMBER"
	TypeVSAM        DataSetType = "VSAM"
	TypeGDG         DataSetType = "GDG"
	TypeUnknown     DataSetType = "UNKNOWN"
)

// ErrNotFound is returned when a data set is not cataloged.
var ErrNotFound = errors.New("data set not found")

// DataSet holds the attributes reported by the catalog listing.
type DataSet struct {
	Name           string
	Type           DataSetType
	RecordFormat   string
	RecordLength   int
	BlockSize      int
	Volume         string
	AllocatedBytes int64
}

// AllocSpec describes a new data set. Zero values are left to system defaults.
type AllocSpec struct {
	Name            string
	Type            DataSetType
	SpacePrimary    int
	SpaceSecondary  int
	SpaceType       string // K, M, G, TRK, CYL
	RecordFormat    string
	RecordLength    int
	BlockSize       int
	DirectoryBlocks int
	StorageClass    string
	DataClass       string
	ManagementClass string
	Volumes         []string
}

// Binaries names the utilities the client shells out to.
type Binaries struct {
	MVSCmd   string
	DLS      string
	DTouch   string
	DRM      string
	MVSTmp   string
	DCP      string
	Checksum string
}

// DefaultBinaries returns the ZOAU program names found on a standard PATH.
func DefaultBinaries() Binaries {
	return Binaries{
		MVSCmd:   "mvscmdauth",
		DLS:      "dls",
		DTouch:   "dtouch",
		DRM:      "drm",
		MVSTmp:   "mvstmp",
		DCP:      "dcp",
		Checksum: "sha256",
	}
}

// Client performs catalog and utility operations on the managed node.
type Client struct {
	runner Runner
	bin    Binaries
	logger *slog.Logger
}

// NewClient creates a Client. Empty binary names fall back to the defaults.
func NewClient(runner Runner, bin Binaries, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBinaries()
	if bin.MVSCmd == "" {
		bin.MVSCmd = def.MVSCmd
	}
	if bin.DLS == "" {
		bin.DLS = def.DLS
	}
	if bin.DTouch == "" {
		bin.DTouch = def.DTouch
	}
	if bin.DRM == "" {
		bin.DRM = def.DRM
	}
	if bin.MVSTmp == "" {
		bin.MVSTmp = def.MVSTmp
	}
	if bin.DCP == "" {
		bin.DCP = def.DCP
	}
	if bin.Checksum == "" {
		bin.Checksum = def.Checksum
	}
	return &Client{runner: runner, bin: bin, logger: logger}
}

func (c *Client) run(ctx context.Context, name string, args ...string) (Output, error) {
	return c.runner.Run(ctx, Command{Name: name, Args: args})
}

// List returns every cataloged name matching a catalog pattern.
// A pattern with no matches yields an empty list.
func (c *Client) List(ctx context.Context, pattern string) ([]string, error) {
	out, err := c.run(ctx, c.bin.DLS, strings.ToUpper(pattern))
	if err != nil {
		return nil, err
	}
	switch out.RC {
	case 0:
	case 1:
		return nil, nil
	default:
		return nil, commandError(c.bin.DLS, out)
	}
	return parseNameListing(out.Stdout), nil
}

// Exists reports whether name is cataloged. Relative GDS names are resolved
// first; an unresolvable generation does not exist.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	if IsRelativeGDS(name) {
		abs, err := c.ResolveGDS(ctx, name)
		if err != nil {
			if errors.Is(err, ErrGenerationNotCataloged) {
				return false, nil
			}
			return false, err
		}
		name = abs
	}
	if base, member, ok := SplitMember(name); ok {
		members, err := c.List(ctx, base+"("+member+")")
		if err != nil {
			return false, err
		}
		return len(members) > 0, nil
	}
	names, err := c.List(ctx, name)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}

// Info returns catalog attributes for a single data set.
func (c *Client) Info(ctx context.Context, name string) (*DataSet, error) {
	out, err := c.run(ctx, c.bin.DLS, "-l", "-s", strings.ToUpper(name))
	if err != nil {
		return nil, err
	}
	if out.RC == 1 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if out.RC != 0 {
		return nil, commandError(c.bin.DLS, out)
	}
	sets, err := parseLongListing(out.Stdout)
	if err != nil {
		return nil, err
	}
	for _, ds := range sets {
		if strings.EqualFold(ds.Name, name) {
			return &ds, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Allocate creates a data set.
func (c *Client) Allocate(ctx context.Context, spec AllocSpec) error {
	args := allocArgs(spec)
	out, err := c.run(ctx, c.bin.DTouch, args...)
	if err != nil {
		return err
	}
	if out.RC != 0 {
		return fmt.Errorf("allocating %s: %w", spec.Name, commandError(c.bin.DTouch, out))
	}
	c.logger.Debug("data set allocated", "name", spec.Name, "type", spec.Type)
	return nil
}

func allocArgs(spec AllocSpec) []string {
	typ := spec.Type
	if typ == "" {
		typ = TypeSequential
	}
	args := []string{"-t", strings.ToLower(string(typ))}
	unit := spec.SpaceType
	if unit == "" {
		unit = "K"
	}
	if spec.SpacePrimary > 0 {
		args = append(args, "-s", strconv.Itoa(spec.SpacePrimary)+unit)
	}
	if spec.SpaceSecondary > 0 {
		args = append(args, "-e", strconv.Itoa(spec.SpaceSecondary)+unit)
	}
	if spec.RecordFormat != "" {
		args = append(args, "-r", spec.RecordFormat)
	}
	if spec.RecordLength > 0 {
		args = append(args, "-l", strconv.Itoa(spec.RecordLength))
	}
	if spec.BlockSize > 0 {
		args = append(args, "-b", strconv.Itoa(spec.BlockSize))
	}
	if spec.DirectoryBlocks > 0 {
		args = append(args, "-d", strconv.Itoa(spec.DirectoryBlocks))
	}
	if spec.StorageClass != "" {
		args = append(args, "-c", spec.StorageClass)
	}
	if spec.DataClass != "" {
		args = append(args, "-D", spec.DataClass)
	}
	if spec.ManagementClass != "" {
		args = append(args, "-m", spec.ManagementClass)
	}
	if len(spec.Volumes) > 0 {
		args = append(args, "-V", strings.Join(spec.Volumes, ","))
	}
	return append(args, strings.ToUpper(spec.Name))
}

// Delete uncatalogs and deletes a data set. Deleting a missing data set
// returns ErrNotFound.
func (c *Client) Delete(ctx context.Context, name string) error {
	out, err := c.run(ctx, c.bin.DRM, "-f", strings.ToUpper(name))
	if err != nil {
		return err
	}
	switch out.RC {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	default:
		return fmt.Errorf("deleting %s: %w", name, commandError(c.bin.DRM, out))
	}
}

// TempName returns a unique, not yet allocated data set name under hlq.
// An empty hlq lets the utility pick the caller's default.
func (c *Client) TempName(ctx context.Context, hlq string) (string, error) {
	var args []string
	if hlq != "" {
		args = append(args, strings.ToUpper(hlq))
	}
	out, err := c.run(ctx, c.bin.MVSTmp, args...)
	if err != nil {
		return "", err
	}
	if out.RC != 0 {
		return "", commandError(c.bin.MVSTmp, out)
	}
	name := strings.TrimSpace(out.Stdout)
	if name == "" {
		return "", fmt.Errorf("%s returned no name", c.bin.MVSTmp)
	}
	return name, nil
}

// CopyToFile copies a data set (or member) into a USS path.
func (c *Client) CopyToFile(ctx context.Context, name, path string) error {
	out, err := c.run(ctx, c.bin.DCP, strings.ToUpper(name), path)
	if err != nil {
		return err
	}
	if out.RC != 0 {
		return fmt.Errorf("copying %s to %s: %w", name, path, commandError(c.bin.DCP, out))
	}
	return nil
}

// CopyFromFile replaces a data set (or member) with the content of a USS path.
func (c *Client) CopyFromFile(ctx context.Context, path, name string) error {
	out, err := c.run(ctx, c.bin.DCP, "-f", path, strings.ToUpper(name))
	if err != nil {
		return err
	}
	if out.RC != 0 {
		return fmt.Errorf("copying %s to %s: %w", path, name, commandError(c.bin.DCP, out))
	}
	return nil
}

// Checksum returns the hex SHA-256 digest of a data set's content.
func (c *Client) Checksum(ctx context.Context, name string) (string, error) {
	out, err := c.run(ctx, c.bin.Checksum, "//'"+strings.ToUpper(name)+"'")
	if err != nil {
		return "", err
	}
	if out.RC != 0 {
		return "", commandError(c.bin.Checksum, out)
	}
	return ParseChecksum(out.Stdout)
}

// SplitMember splits "LIB.NAME(MEMBER)" into its parts. Relative GDS names
// are not members.
func SplitMember(name string) (base, member string, ok bool) {
	open := strings.IndexByte(name, '(')
	if open <= 0 || !strings.HasSuffix(name, ")") || IsRelativeGDS(name) {
		return "", "", false
	}
	return name[:open], name[open+1 : len(name)-1], true
}
