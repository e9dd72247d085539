package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// document is the on-disk layout: a top-level "provisions" list.
type document struct {
	Provisions []Provision `json:"provisions" yaml:"provisions"`
}

// LoadFile reads provisions from a YAML (.yaml, .yml) or JSON (.json) file.
func LoadFile(path string) ([]Provision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadFailure(fmt.Errorf("reading corpus file %s: %w", path, err))
	}

	var doc document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	default:
		return nil, loadFailure(fmt.Errorf("unsupported corpus file extension %q", ext))
	}
	if err != nil {
		return nil, loadFailure(fmt.Errorf("parsing corpus file %s: %w", path, err))
	}
	return doc.Provisions, nil
}

func loadFailure(err error) error {
	return apperrors.New(apperrors.ErrCorpusLoad, http.StatusInternalServerError, err.Error())
}
