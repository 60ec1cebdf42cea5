// Package zostest provides an in-memory stand-in for the z/OS utilities the
// zos package drives, for use in tests on any platform.
package zostest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// DataSet is a simulated cataloged data set.
type DataSet struct {
	Name         string            `json:"name"`
	Type         zos.DataSetType   `json:"type"`
	RecordFormat string            `json:"recfm,omitempty"`
	RecordLength int               `json:"lrecl,omitempty"`
	BlockSize    int               `json:"blksize,omitempty"`
	Volume       string            `json:"volume,omitempty"`
	Bytes        int64             `json:"bytes,omitempty"`
	Content      []byte            `json:"content,omitempty"`
	Members      map[string][]byte `json:"members,omitempty"`
}

// Catalog simulates dls, dtouch, drm, mvstmp, dcp, sha256 and the
// ADRDSSU, AMATERSE and IKJEFT01 programs behind mvscmdauth.
// It implements zos.Runner.
type Catalog struct {
	mu       sync.Mutex
	sets     map[string]*DataSet
	enqueued map[string]bool
	failures map[string]zos.Output
	tmpSeq   int
	Calls    []zos.Command
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		sets:     make(map[string]*DataSet),
		enqueued: make(map[string]bool),
		failures: make(map[string]zos.Output),
	}
}

// Add catalogs a data set.
func (c *Catalog) Add(ds DataSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds.Name = strings.ToUpper(ds.Name)
	if ds.Type == "" {
		ds.Type = zos.TypeSequential
	}
	cp := ds
	c.sets[ds.Name] = &cp
}

// Get returns a copy of a cataloged data set.
func (c *Catalog) Get(name string) (DataSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.sets[strings.ToUpper(name)]
	if !ok {
		return DataSet{}, false
	}
	return *ds, true
}

// Names lists every cataloged name, sorted.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.sets))
	for n := range c.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Enqueue marks a data set as held by another job.
func (c *Catalog) Enqueue(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueued[strings.ToUpper(name)] = true
}

// Fail makes the next invocation of program (a binary name or a PGM such
// as "AMATERSE") return out instead of running.
func (c *Catalog) Fail(program string, out zos.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[strings.ToUpper(program)] = out
}

// Invoked reports how many recorded calls ran program.
func (c *Catalog) Invoked(program string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.Calls {
		if strings.EqualFold(programOf(cmd), program) {
			n++
		}
	}
	return n
}

func programOf(cmd zos.Command) string {
	if cmd.Name == "mvscmdauth" || cmd.Name == "mvscmd" {
		for _, a := range cmd.Args {
			if strings.HasPrefix(a, "--pgm=") {
				return strings.TrimPrefix(a, "--pgm=")
			}
		}
	}
	return cmd.Name
}

// Run implements zos.Runner.
func (c *Catalog) Run(_ context.Context, cmd zos.Command) (zos.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, cmd)

	prog := strings.ToUpper(programOf(cmd))
	if out, ok := c.failures[prog]; ok {
		delete(c.failures, prog)
		return out, nil
	}

	switch cmd.Name {
	case "dls":
		return c.dls(cmd.Args), nil
	case "dtouch":
		return c.dtouch(cmd.Args), nil
	case "drm":
		return c.drm(cmd.Args), nil
	case "mvstmp":
		return c.mvstmp(cmd.Args), nil
	case "dcp":
		return c.dcp(cmd.Args), nil
	case "sha256":
		return c.sha256(cmd.Args), nil
	case "mvscmdauth", "mvscmd":
		return c.mvscmd(cmd), nil
	}
	return zos.Output{RC: 127, Stderr: cmd.Name + ": not found"}, nil
}

func fail(rc int, format string, args ...any) zos.Output {
	return zos.Output{RC: rc, Stderr: fmt.Sprintf(format, args...)}
}

// patternRe converts catalog wildcards: ** any qualifiers, * within one
// qualifier, % one character.
func patternRe(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i++
		case pattern[i] == '*':
			b.WriteString("[^.]*")
		case pattern[i] == '%':
			b.WriteString("[^.]")
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func (c *Catalog) match(pattern string) []string {
	re := patternRe(strings.ToUpper(pattern))
	var names []string
	for n := range c.sets {
		if re.MatchString(n) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func dsorg(t zos.DataSetType) string {
	switch t {
	case zos.TypePartitioned:
		return "PO"
	case zos.TypePDSE:
		return "PO-E"
	case zos.TypeVSAM:
		return "VS"
	case zos.TypeGDG:
		return "GDG"
	}
	return "PS"
}

func (ds *DataSet) allocated() int64 {
	if ds.Bytes > 0 {
		return ds.Bytes
	}
	n := int64(len(ds.Content))
	for _, m := range ds.Members {
		n += int64(len(m))
	}
	return n
}

func (c *Catalog) dls(args []string) zos.Output {
	long := false
	var pattern string
	for _, a := range args {
		switch a {
		case "-l", "-s":
			long = true
		default:
			pattern = a
		}
	}
	if base, member, ok := zos.SplitMember(pattern); ok {
		ds, found := c.sets[base]
		if !found {
			return zos.Output{RC: 1}
		}
		if _, ok := ds.Members[member]; !ok {
			return zos.Output{RC: 1}
		}
		return zos.Output{Stdout: member + "\n"}
	}
	names := c.match(pattern)
	if len(names) == 0 {
		return zos.Output{RC: 1}
	}
	var b strings.Builder
	for _, n := range names {
		ds := c.sets[n]
		if long {
			recfm := ds.RecordFormat
			if recfm == "" {
				recfm = "FB"
			}
			vol := ds.Volume
			if vol == "" {
				vol = "VOL001"
			}
			fmt.Fprintf(&b, "%s %s %s %d %d %s %d\n", n, dsorg(ds.Type), recfm,
				ds.RecordLength, ds.BlockSize, vol, ds.allocated())
		} else {
			b.WriteString(n + "\n")
		}
	}
	return zos.Output{Stdout: b.String()}
}

func (c *Catalog) dtouch(args []string) zos.Output {
	if len(args) == 0 {
		return fail(2, "dtouch: missing name")
	}
	name := strings.ToUpper(args[len(args)-1])
	if _, ok := c.sets[name]; ok {
		return fail(1, "dtouch: %s already exists", name)
	}
	ds := &DataSet{Name: name, Type: zos.TypeSequential}
	for i := 0; i+1 < len(args)-1; i++ {
		switch args[i] {
		case "-t":
			switch strings.ToUpper(args[i+1]) {
			case "PDS":
				ds.Type = zos.TypePartitioned
			case "PDSE":
				ds.Type = zos.TypePDSE
			}
		case "-r":
			ds.RecordFormat = args[i+1]
		case "-V":
			ds.Volume = strings.Split(args[i+1], ",")[0]
		}
	}
	if ds.Type != zos.TypeSequential {
		ds.Members = make(map[string][]byte)
	}
	c.sets[name] = ds
	return zos.Output{}
}

func (c *Catalog) drm(args []string) zos.Output {
	if len(args) == 0 {
		return fail(2, "drm: missing name")
	}
	name := strings.ToUpper(args[len(args)-1])
	if _, ok := c.sets[name]; !ok {
		return fail(1, "drm: %s not found", name)
	}
	delete(c.sets, name)
	return zos.Output{}
}

func (c *Catalog) mvstmp(args []string) zos.Output {
	hlq := "ZUSER"
	if len(args) > 0 {
		hlq = strings.ToUpper(args[0])
	}
	c.tmpSeq++
	return zos.Output{Stdout: fmt.Sprintf("%s.ZATMP.T%07d\n", hlq, c.tmpSeq)}
}

func (c *Catalog) dcp(args []string) zos.Output {
	var operands []string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			operands = append(operands, a)
		}
	}
	if len(operands) != 2 {
		return fail(2, "dcp: need source and target")
	}
	src, dst := operands[0], operands[1]
	if strings.HasPrefix(src, "/") {
		return c.fileToDataSet(src, strings.ToUpper(dst))
	}
	return c.dataSetToFile(strings.ToUpper(src), dst)
}

func (c *Catalog) dataSetToFile(name, path string) zos.Output {
	if base, member, ok := zos.SplitMember(name); ok {
		ds, found := c.sets[base]
		if !found || ds.Members[member] == nil {
			return fail(1, "dcp: %s not found", name)
		}
		if err := os.WriteFile(path, ds.Members[member], 0o644); err != nil {
			return fail(8, "dcp: %v", err)
		}
		return zos.Output{}
	}
	ds, ok := c.sets[name]
	if !ok {
		return fail(1, "dcp: %s not found", name)
	}
	if ds.Members != nil {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fail(8, "dcp: %v", err)
		}
		for m, data := range ds.Members {
			if err := os.WriteFile(filepath.Join(path, m), data, 0o644); err != nil {
				return fail(8, "dcp: %v", err)
			}
		}
		return zos.Output{}
	}
	if err := os.WriteFile(path, ds.Content, 0o644); err != nil {
		return fail(8, "dcp: %v", err)
	}
	return zos.Output{}
}

func (c *Catalog) fileToDataSet(path, name string) zos.Output {
	if base, member, ok := zos.SplitMember(name); ok {
		ds, found := c.sets[base]
		if !found {
			return fail(1, "dcp: %s not found", base)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(8, "dcp: %v", err)
		}
		if ds.Members == nil {
			ds.Members = make(map[string][]byte)
		}
		ds.Members[member] = data
		return zos.Output{}
	}
	ds, ok := c.sets[name]
	if !ok {
		ds = &DataSet{Name: name, Type: zos.TypeSequential}
		c.sets[name] = ds
	}
	info, err := os.Stat(path)
	if err != nil {
		return fail(8, "dcp: %v", err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return fail(8, "dcp: %v", err)
		}
		ds.Members = make(map[string][]byte)
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(path, e.Name()))
			if err != nil {
				return fail(8, "dcp: %v", err)
			}
			ds.Members[strings.ToUpper(e.Name())] = data
		}
		return zos.Output{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(8, "dcp: %v", err)
	}
	ds.Content = data
	return zos.Output{}
}

func (c *Catalog) sha256(args []string) zos.Output {
	if len(args) == 0 {
		return fail(2, "sha256: missing operand")
	}
	name := strings.TrimSuffix(strings.TrimPrefix(args[0], "//'"), "'")
	ds, ok := c.sets[strings.ToUpper(name)]
	if !ok {
		return fail(1, "sha256: %s not found", name)
	}
	h := sha256.New()
	h.Write(ds.Content)
	members := make([]string, 0, len(ds.Members))
	for m := range ds.Members {
		members = append(members, m)
	}
	sort.Strings(members)
	for _, m := range members {
		h.Write([]byte(m))
		h.Write(ds.Members[m])
	}
	return zos.Output{Stdout: fmt.Sprintf("SHA256 (%s) = %s\n", args[0], hex.EncodeToString(h.Sum(nil)))}
}

type mvsInvocation struct {
	pgm   string
	parm  string
	dds   map[string]string
	stdin string
}

func parseMVSCmd(cmd zos.Command) mvsInvocation {
	inv := mvsInvocation{dds: make(map[string]string), stdin: cmd.Stdin}
	for _, a := range cmd.Args {
		k, v, _ := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		switch k {
		case "pgm":
			inv.pgm = strings.ToUpper(v)
		case "args":
			inv.parm = v
		default:
			name, _, _ := strings.Cut(v, ",")
			inv.dds[k] = name
		}
	}
	return inv
}

func (c *Catalog) mvscmd(cmd zos.Command) zos.Output {
	inv := parseMVSCmd(cmd)
	switch inv.pgm {
	case "ADRDSSU":
		return c.adrdssu(inv)
	case "AMATERSE":
		return c.amaterse(inv)
	case "IKJEFT01":
		return c.ikjeft01(inv)
	}
	return fail(8, "program %s not supported", inv.pgm)
}

func (c *Catalog) requireSet(name string) (*DataSet, zos.Output, bool) {
	ds, ok := c.sets[strings.ToUpper(name)]
	if !ok {
		return nil, fail(8, "data set %s not cataloged", name), false
	}
	return ds, zos.Output{}, true
}

var inclRe = regexp.MustCompile(`INCL\(([^)]*)\)`)
var exclRe = regexp.MustCompile(`EXCL\(([^)]*)\)`)
var volRe = regexp.MustCompile(`OUTDYNAM\(\(([^)]*)\)`)

func splitNames(list string) []string {
	var names []string
	for _, tok := range strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		if tok == "-" || tok == "" {
			continue
		}
		names = append(names, strings.ToUpper(tok))
	}
	return names
}

func (c *Catalog) adrdssu(inv mvsInvocation) zos.Output {
	archive, out, ok := c.requireSet(inv.dds["archive"])
	if !ok {
		return out
	}
	sysin := strings.ToUpper(inv.stdin)
	switch {
	case strings.Contains(sysin, "DUMP"):
		return c.dump(archive, sysin)
	case strings.Contains(sysin, "RESTORE"):
		return c.restore(archive, sysin, strings.Contains(strings.ToUpper(inv.parm), "NORUN"))
	}
	return fail(8, "ADR101E unknown command")
}

func (c *Catalog) dump(archive *DataSet, sysin string) zos.Output {
	m := inclRe.FindStringSubmatch(sysin)
	if m == nil {
		return fail(8, "ADR101E missing INCL")
	}
	tolerate := strings.Contains(sysin, "TOL(ENQF IOER)")
	var dumped []DataSet
	var processed, skipped []string
	for _, pattern := range splitNames(m[1]) {
		for _, n := range c.match(pattern) {
			if c.enqueued[n] && !tolerate {
				skipped = append(skipped, n)
				continue
			}
			dumped = append(dumped, *c.sets[n])
			processed = append(processed, n)
		}
	}
	data, _ := json.Marshal(dumped)
	archive.Content = data

	var b strings.Builder
	b.WriteString("ADR101I (R/I)-RI01 (01), TASKID 001 HAS BEEN ASSIGNED TO COMMAND 'DUMP'\n")
	if len(processed) > 0 {
		b.WriteString("ADR454I (001)-DDDRO(01), THE FOLLOWING DATA SETS WERE SUCCESSFULLY PROCESSED\n")
		for _, n := range processed {
			b.WriteString("                       " + n + "\n")
		}
	}
	rc := 0
	if len(skipped) > 0 {
		rc = 8
		b.WriteString("ADR455W (001)-DDDRO(02), THE FOLLOWING DATA SETS WERE NOT PROCESSED\n")
		for _, n := range skipped {
			b.WriteString("                       " + n + "  DUE TO ENQUEUE FAILURE\n")
		}
	}
	fmt.Fprintf(&b, "ADR013I (001)-CLTSK(01), TASK COMPLETED WITH RETURN CODE %04d\n", rc)
	return zos.Output{RC: rc, Stdout: b.String()}
}

func (c *Catalog) restore(archive *DataSet, sysin string, noRun bool) zos.Output {
	var dumped []DataSet
	if err := json.Unmarshal(archive.Content, &dumped); err != nil {
		return fail(8, "ADR744E input is not a dump data set")
	}
	include := []string{"**"}
	if m := inclRe.FindStringSubmatch(sysin); m != nil {
		include = splitNames(m[1])
	}
	var exclude []string
	if m := exclRe.FindStringSubmatch(sysin); m != nil {
		exclude = splitNames(m[1])
	}
	volume := ""
	if m := volRe.FindStringSubmatch(sysin); m != nil {
		volume = m[1]
	}
	replace := strings.Contains(sysin, "REPLACE")

	matches := func(name string, patterns []string) bool {
		for _, p := range patterns {
			if patternRe(p).MatchString(name) {
				return true
			}
		}
		return false
	}

	var processed, skipped []string
	for _, ds := range dumped {
		if !matches(ds.Name, include) || matches(ds.Name, exclude) {
			continue
		}
		if _, exists := c.sets[ds.Name]; exists && !replace && !noRun {
			skipped = append(skipped, ds.Name)
			continue
		}
		if !noRun {
			cp := ds
			if volume != "" {
				cp.Volume = volume
			}
			c.sets[ds.Name] = &cp
		}
		processed = append(processed, ds.Name)
	}

	var b strings.Builder
	b.WriteString("ADR101I (R/I)-RI01 (01), TASKID 001 HAS BEEN ASSIGNED TO COMMAND 'RESTORE'\n")
	if len(processed) > 0 {
		b.WriteString("ADR454I (001)-DDDRO(01), THE FOLLOWING DATA SETS WERE SUCCESSFULLY PROCESSED\n")
		for _, n := range processed {
			b.WriteString("                       " + n + "\n")
		}
	}
	rc := 0
	if len(skipped) > 0 {
		rc = 8
		b.WriteString("ADR455W (001)-DDDRO(02), THE FOLLOWING DATA SETS WERE NOT PROCESSED\n")
		for _, n := range skipped {
			b.WriteString("                       " + n + "  DUE TO DATA SET ALREADY EXISTS\n")
		}
	}
	fmt.Fprintf(&b, "ADR013I (001)-CLTSK(01), TASK COMPLETED WITH RETURN CODE %04d\n", rc)
	return zos.Output{RC: rc, Stdout: b.String()}
}

// packed is the simulated content of a tersed or transmitted data set.
type packed struct {
	Format string  `json:"format"`
	Set    DataSet `json:"set"`
}

func (c *Catalog) pack(format, in, out string) zos.Output {
	src, res, ok := c.requireSet(in)
	if !ok {
		return res
	}
	dst, res, ok := c.requireSet(out)
	if !ok {
		return res
	}
	data, _ := json.Marshal(packed{Format: format, Set: *src})
	dst.Content = data
	return zos.Output{Stdout: format + " COMPLETE\n"}
}

func (c *Catalog) unpack(format, in, out string) zos.Output {
	src, res, ok := c.requireSet(in)
	if !ok {
		return res
	}
	dst, res, ok := c.requireSet(out)
	if !ok {
		return res
	}
	var p packed
	if err := json.Unmarshal(src.Content, &p); err != nil || p.Format != format {
		return fail(12, "input %s is not in %s format", in, format)
	}
	dst.Type = p.Set.Type
	dst.Content = p.Set.Content
	dst.Members = p.Set.Members
	return zos.Output{Stdout: format + " UNPACK COMPLETE\n"}
}

func (c *Catalog) amaterse(inv mvsInvocation) zos.Output {
	switch strings.ToUpper(inv.parm) {
	case "PACK", "SPACK":
		return c.pack("TERSE", inv.dds["sysut1"], inv.dds["sysut2"])
	case "UNPACK":
		return c.unpack("TERSE", inv.dds["sysut1"], inv.dds["sysut2"])
	}
	return fail(16, "AMATERSE: bad parm %q", inv.parm)
}

var quotedRe = regexp.MustCompile(`(\w+)\('([^']*)'\)`)

func quotedArgs(line string) map[string]string {
	args := make(map[string]string)
	for _, m := range quotedRe.FindAllStringSubmatch(line, -1) {
		args[strings.ToUpper(m[1])] = m[2]
	}
	return args
}

func (c *Catalog) ikjeft01(inv mvsInvocation) zos.Output {
	lines := strings.Split(strings.TrimSpace(inv.stdin), "\n")
	for i, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(upper, "XMIT"):
			a := quotedArgs(upper)
			if logDS := a["LOGDSNAME"]; logDS != "" {
				if _, ok := c.sets[logDS]; !ok {
					c.sets[logDS] = &DataSet{Name: logDS, Type: zos.TypeSequential}
				}
			}
			return c.pack("XMIT", a["DSNAME"], a["OUTDSNAME"])
		case strings.HasPrefix(upper, "RECEIVE"):
			a := quotedArgs(upper)
			if i+1 >= len(lines) {
				return fail(12, "RECEIVE: no DATASET response")
			}
			target := quotedArgs(strings.ToUpper(lines[i+1]))["DATASET"]
			return c.unpack("XMIT", a["INDSNAME"], target)
		}
	}
	return zos.Output{}
}
