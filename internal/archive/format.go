package archive

import (
	"archive/tar"
	"fmt"
	"regexp"
)

// variant is one entry of the format table. USS variants implement
// ussContainer, MVS variants implement mvsPacker.
type variant interface {
	storage() Storage
}

var formats = map[FormatType]func(FormatOptions) variant{
	FormatTar: func(FormatOptions) variant { return tarVariant{} },
	FormatGz:  func(FormatOptions) variant { return tarVariant{compression: compressGzip} },
	FormatBz2: func(FormatOptions) variant { return tarVariant{compression: compressBzip2} },
	FormatPax: func(FormatOptions) variant { return tarVariant{format: tar.FormatGNU} },
	FormatZip: func(FormatOptions) variant { return zipVariant{} },
	FormatTerse: func(o FormatOptions) variant {
		return terseVariant{spack: o.Spack}
	},
	FormatXmit: func(o FormatOptions) variant {
		return xmitVariant{logDataSet: o.XmitLogDataSet}
	},
}

func lookupFormat(f Format) (variant, error) {
	build, ok := formats[f.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", f.Type)
	}
	return build(f.Options), nil
}

// archiveExtRe matches USS destination names that carry an archive extension.
var archiveExtRe = regexp.MustCompile(`(?i)\.(tar|tar\.gz|tgz|tar\.bz2|tbz2?|pax|zip|gz|bz2)$`)
