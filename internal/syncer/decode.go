package syncer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/roulette/internal/model"
)

//go:embed schema.cue
var poolSchema string

// poolFile is the on-disk shape shared by every format.
type poolFile struct {
	ID      string      `json:"id" yaml:"id" toml:"id"`
	Rule    ruleFile    `json:"rule" yaml:"rule" toml:"rule"`
	Entries []entryFile `json:"entries" yaml:"entries" toml:"entries"`
}

type ruleFile struct {
	Kind string `json:"kind" yaml:"kind" toml:"kind"`
	N    int    `json:"n" yaml:"n" toml:"n"`
	Tag  string `json:"tag" yaml:"tag" toml:"tag"`
}

type entryFile struct {
	ID       string         `json:"id" yaml:"id" toml:"id"`
	Weight   float64        `json:"weight" yaml:"weight" toml:"weight"`
	Tags     []string       `json:"tags" yaml:"tags" toml:"tags"`
	Metadata map[string]any `json:"metadata" yaml:"metadata" toml:"metadata"`
}

type decodeFunc func(data []byte, pf *poolFile) error

var decoders = map[string]decodeFunc{
	".toml": decodeTOML,
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
	".cue":  decodeCUE,
}

// Supported reports whether path has a pool definition extension.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadFile reads one pool definition. When the file sets no id, the file
// name without its extension is used. The pool is returned as written;
// validation happens when it is installed.
func LoadFile(path string) (model.Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Pool{}, fmt.Errorf("read pool file: %w", err)
	}
	return Decode(path, data)
}

// Decode parses data in the format implied by name's extension.
func Decode(name string, data []byte) (model.Pool, error) {
	ext := strings.ToLower(filepath.Ext(name))
	dec, ok := decoders[ext]
	if !ok {
		return model.Pool{}, fmt.Errorf("%s: unsupported pool file extension %q", name, ext)
	}

	var pf poolFile
	if err := dec(data, &pf); err != nil {
		return model.Pool{}, model.Wrap(model.KindValidation, "decode", pf.ID, "", fmt.Errorf("%s: %w", name, err))
	}
	if pf.ID == "" {
		pf.ID = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return pf.toPool()
}

func (pf poolFile) toPool() (model.Pool, error) {
	p := model.Pool{
		ID: pf.ID,
		Rule: model.ExclusionRule{
			Kind: model.RuleKind(pf.Rule.Kind),
			N:    pf.Rule.N,
			Tag:  pf.Rule.Tag,
		},
		Entries: make([]model.Entry, 0, len(pf.Entries)),
	}
	for _, e := range pf.Entries {
		entry := model.Entry{ID: e.ID, Weight: e.Weight, Tags: e.Tags}
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return model.Pool{}, model.NewValidationError(pf.ID, "entry %q metadata: %v", e.ID, err)
			}
			entry.Metadata = raw
		}
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

func decodeTOML(data []byte, pf *poolFile) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(pf); err != nil {
		return fmt.Errorf("parse TOML: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, pf *poolFile) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(pf); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, pf *poolFile) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	// metadata numbers stay json.Number so they re-encode digit for digit
	dec.UseNumber()
	if err := dec.Decode(pf); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

func decodeCUE(data []byte, pf *poolFile) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(poolSchema).LookupPath(cue.ParsePath("#Pool"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("pool schema: %w", err)
	}

	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile CUE: %s", cueerrors.Details(err, nil))
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate CUE: %s", cueerrors.Details(err, nil))
	}
	if err := v.Decode(pf); err != nil {
		return fmt.Errorf("decode CUE: %w", err)
	}
	return nil
}
