package zos

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// dataSetNameRe matches a fully qualified data set name: up to 22 qualifiers
// of 1-8 characters, each starting with a letter or national character.
var dataSetNameRe = regexp.MustCompile(`(?:[A-Z$#@][A-Z0-9$#@-]{0,7}\.){1,21}[A-Z$#@][A-Z0-9$#@-]{0,7}`)

// adrMessageRe marks the start of any ADRDSSU message line.
var adrMessageRe = regexp.MustCompile(`(?m)^\s*(?:\d\s*)?ADR\d{3}[A-Z]`)

const (
	processedMarker    = "SUCCESSFULLY PROCESSED"
	notProcessedMarker = "NOT PROCESSED"
)

// ParseDumpRestore extracts the data set names ADRDSSU lists under its
// "SUCCESSFULLY PROCESSED" and "NOT PROCESSED" sections.
func ParseDumpRestore(output string) (processed, notProcessed []string) {
	upper := strings.ToUpper(output)
	processed = namesAfter(upper, processedMarker, nil)
	notProcessed = namesAfter(upper, notProcessedMarker, func(line string) string {
		// "USER.A.B  DUE TO ..." keeps only the name in front of the reason.
		if i := strings.Index(line, "DUE TO"); i >= 0 {
			return line[:i]
		}
		return line
	})
	return processed, notProcessed
}

func namesAfter(output, marker string, trim func(string) string) []string {
	var names []string
	seen := make(map[string]bool)
	rest := output
	for {
		i := strings.Index(rest, marker)
		if i < 0 {
			break
		}
		rest = rest[i+len(marker):]
		// Skip the remainder of the header line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			break
		}
		section := rest
		if loc := adrMessageRe.FindStringIndex(section); loc != nil {
			section = section[:loc[0]]
		}
		for _, line := range strings.Split(section, "\n") {
			if trim != nil {
				line = trim(line)
			}
			for _, n := range dataSetNameRe.FindAllString(line, -1) {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	return names
}

var abendRe = regexp.MustCompile(`ABEND\s+CODE[\s=]+(?:SYSTEM[\s=]+)?S?([0-9A-F]{3,4})\b.*?REASON\s+CODE[\s=]+([0-9A-F]+)`)

// ParseAbend finds an "ABEND CODE xxx ... REASON CODE yy" report in TSO output.
// The reason code is returned without leading zeros.
func ParseAbend(output string) (abend, reason string, ok bool) {
	m := abendRe.FindStringSubmatch(strings.ToUpper(output))
	if m == nil {
		return "", "", false
	}
	reason = strings.TrimLeft(m[2], "0")
	if reason == "" {
		reason = "0"
	}
	return m[1], reason, true
}

type abendKey struct {
	abend  string
	reason string
}

var abendHints = map[abendKey]string{
	{"D37", "4"}:  "the destination data set ran out of primary space and has no secondary allocation; increase dest_data_set.space_primary or set space_secondary",
	{"B37", "4"}:  "the destination volume is full; allocate the destination on another volume or reduce its size",
	{"E37", "4"}:  "the destination data set exhausted its extents; increase dest_data_set.space_primary",
	{"913", "38"}: "the user is not authorized to the data set; check RACF access to source and destination",
	{"213", "30"}: "a data set named in the command is not on the volume recorded in the catalog",
}

// AbendHint returns guidance for a known abend/reason pair.
func AbendHint(abend, reason string) (string, bool) {
	h, ok := abendHints[abendKey{strings.ToUpper(abend), strings.ToUpper(reason)}]
	return h, ok
}

var hexDigestRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ParseChecksum extracts the digest from "key = value" style checksum output.
func ParseChecksum(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		i := strings.LastIndex(line, "=")
		if i < 0 {
			continue
		}
		v := strings.TrimSpace(line[i+1:])
		if hexDigestRe.MatchString(v) {
			return strings.ToLower(v), nil
		}
	}
	// Plain "digest  name" output.
	if f := strings.Fields(output); len(f) > 0 && hexDigestRe.MatchString(f[0]) {
		return strings.ToLower(f[0]), nil
	}
	return "", fmt.Errorf("no sha256 digest in checksum output %q", strings.TrimSpace(output))
}

func parseNameListing(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		names = append(names, strings.ToUpper(f[0]))
	}
	return names
}

// parseLongListing reads "dls -l -s" lines:
//
//	NAME DSORG RECFM LRECL BLKSIZE VOLSER ALLOCATED_BYTES
func parseLongListing(out string) ([]DataSet, error) {
	var sets []DataSet
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		if len(f) < 7 {
			return nil, fmt.Errorf("unexpected listing line %q", line)
		}
		ds := DataSet{
			Name:         strings.ToUpper(f[0]),
			Type:         dsorgType(f[1]),
			RecordFormat: f[2],
			Volume:       f[5],
		}
		ds.RecordLength, _ = strconv.Atoi(f[3])
		ds.BlockSize, _ = strconv.Atoi(f[4])
		ds.AllocatedBytes, _ = strconv.ParseInt(f[6], 10, 64)
		sets = append(sets, ds)
	}
	return sets, nil
}

func dsorgType(dsorg string) DataSetType {
	switch strings.ToUpper(dsorg) {
	case "PS":
		return TypeSequential
	case "PO":
		return TypePartitioned
	case "PO-E", "POE":
		return TypePDSE
	case "VS", "VSAM":
		return TypeVSAM
	case "GDG":
		return TypeGDG
	default:
		return TypeUnknown
	}
}
