package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// writeAtomic replaces path so that readers see either the old file or the new one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create dir for %s", path)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write temp file for %s", path)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "chmod temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close temp file for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "atomic rename for %s", path)
	}
	return nil
}

func writeJSON(path string, v interface{}, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return errors.Wrapf(err, "marshal %s", filepath.Base(path))
	}
	return writeAtomic(path, append(data, '\n'))
}
