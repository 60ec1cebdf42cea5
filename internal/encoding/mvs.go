package encoding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// Catalog is the subset of the zos client the MVS converter needs.
type Catalog interface {
	Info(ctx context.Context, name string) (*zos.DataSet, error)
	CopyToFile(ctx context.Context, name, path string) error
	CopyFromFile(ctx context.Context, path, name string) error
}

// MVSConverter converts data sets by copying them to a USS work file,
// converting it and copying it back. The organization seen on the first
// conversion of a data set is reused for every later one.
type MVSConverter struct {
	catalog Catalog
	uss     USSConverter
	types   map[string]zos.DataSetType
}

// NewMVSConverter creates an MVSConverter.
func NewMVSConverter(catalog Catalog) *MVSConverter {
	return &MVSConverter{catalog: catalog, types: make(map[string]zos.DataSetType)}
}

// Type returns the organization recorded for name.
func (m *MVSConverter) Type(name string) (zos.DataSetType, bool) {
	t, ok := m.types[strings.ToUpper(name)]
	return t, ok
}

func (m *MVSConverter) typeOf(ctx context.Context, name string) (zos.DataSetType, error) {
	key := strings.ToUpper(name)
	if t, ok := m.types[key]; ok {
		return t, nil
	}
	var t zos.DataSetType
	if _, _, ok := zos.SplitMember(key); ok {
		t = zos.TypeMember
	} else {
		ds, err := m.catalog.Info(ctx, key)
		if err != nil {
			return "", err
		}
		t = ds.Type
	}
	switch t {
	case zos.TypeSequential, zos.TypePartitioned, zos.TypePDSE, zos.TypeMember:
	default:
		return "", fmt.Errorf("%s: cannot convert %s data sets", name, t)
	}
	m.types[key] = t
	return t, nil
}

// Convert implements Converter.
func (m *MVSConverter) Convert(ctx context.Context, target, from, to string) error {
	t, err := m.typeOf(ctx, target)
	if err != nil {
		return err
	}
	work, err := os.MkdirTemp("", "zarchive-enc-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	path := filepath.Join(work, "content")
	if t == zos.TypePartitioned || t == zos.TypePDSE {
		if err := os.Mkdir(path, 0o700); err != nil {
			return err
		}
	}
	if err := m.catalog.CopyToFile(ctx, target, path); err != nil {
		return err
	}
	if err := m.uss.Convert(ctx, path, from, to); err != nil {
		return err
	}
	return m.catalog.CopyFromFile(ctx, path, target)
}
