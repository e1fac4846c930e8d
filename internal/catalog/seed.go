package catalog

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// Seed describes a catalog declaratively. Entities are matched by name
// within their parent, so applying the same seed twice changes nothing.
type Seed struct {
	Lines []SeedLine `yaml:"lines"`
}

// SeedLine is one production line.
type SeedLine struct {
	Name          string             `yaml:"name"`
	Presentations []SeedPresentation `yaml:"presentations"`
	ControlTypes  []SeedControlType  `yaml:"control_types"`
}

// SeedPresentation is a presentation with its overrides.
type SeedPresentation struct {
	Name      string         `yaml:"name"`
	Overrides []SeedOverride `yaml:"overrides"`
}

// SeedOverride names the parameter it redefines by control type and
// parameter name.
type SeedOverride struct {
	ControlType string   `yaml:"control_type"`
	Parameter   string   `yaml:"parameter"`
	Kind        string   `yaml:"kind,omitempty"`
	Unit        *string  `yaml:"unit,omitempty"`
	Lower       *float64 `yaml:"lower,omitempty"`
	Upper       *float64 `yaml:"upper,omitempty"`
}

// SeedControlType is a control type with its parameters.
type SeedControlType struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Parameters  []SeedParameter `yaml:"parameters"`
}

// SeedParameter is a parameter with its base limits.
type SeedParameter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Kind        string   `yaml:"kind"`
	Unit        string   `yaml:"unit"`
	Lower       *float64 `yaml:"lower,omitempty"`
	Upper       *float64 `yaml:"upper,omitempty"`
}

// SeedResult counts what Apply changed.
type SeedResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Overrides int `json:"overrides"`
}

// LoadSeed decodes a seed document. Unknown keys are rejected.
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Seed
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return &s, nil
		}
		return nil, eris.Wrap(err, "catalog: parse seed")
	}
	return &s, nil
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open seed %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadSeed(f)
}

// Apply creates missing entities, brings existing parameters in line with
// the seed and sets every listed override. It stops at the first error;
// entities written before it stay.
func (s *Service) Apply(ctx context.Context, seed *Seed) (*SeedResult, error) {
	res := &SeedResult{}

	lines, err := s.store.ListLines(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: seed list lines")
	}

	for _, sl := range seed.Lines {
		line, err := s.seedLine(ctx, lines, sl.Name, res)
		if err != nil {
			return res, err
		}

		// Control types first: overrides refer to their parameters.
		params := map[string]map[string]*model.Parameter{}
		existingCTs, err := s.store.ListControlTypes(ctx, line.ID)
		if err != nil {
			return res, eris.Wrapf(err, "catalog: seed list control types of %q", sl.Name)
		}
		for _, sct := range sl.ControlTypes {
			ct, err := s.seedControlType(ctx, line.ID, existingCTs, sct, res)
			if err != nil {
				return res, err
			}
			byName, err := s.seedParameters(ctx, ct.ID, sct.Parameters, res)
			if err != nil {
				return res, err
			}
			params[strings.ToLower(ct.Name)] = byName
		}

		existingPres, err := s.store.ListPresentations(ctx, line.ID)
		if err != nil {
			return res, eris.Wrapf(err, "catalog: seed list presentations of %q", sl.Name)
		}
		for _, sp := range sl.Presentations {
			pres, err := s.seedPresentation(ctx, line.ID, existingPres, sp.Name, res)
			if err != nil {
				return res, err
			}
			for _, so := range sp.Overrides {
				p, ok := params[strings.ToLower(strings.TrimSpace(so.ControlType))][strings.ToLower(strings.TrimSpace(so.Parameter))]
				if !ok {
					return res, eris.Wrapf(model.ErrNotFound,
						"catalog: seed override on %q refers to %s/%s", sp.Name, so.ControlType, so.Parameter)
				}
				o := model.ParameterOverride{
					PresentationID: pres.ID, ParameterID: p.ID,
					Unit: so.Unit, Lower: so.Lower, Upper: so.Upper,
				}
				if so.Kind != "" {
					k := model.ParameterKind(strings.ToUpper(so.Kind))
					o.Kind = &k
				}
				if _, err := s.SetOverride(ctx, o); err != nil {
					return res, err
				}
				res.Overrides++
			}
		}
	}

	zap.L().Info("catalog: seed applied",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("overrides", res.Overrides),
	)
	return res, nil
}

func (s *Service) seedLine(ctx context.Context, existing []model.Line, name string, res *SeedResult) (*model.Line, error) {
	name = strings.TrimSpace(name)
	for i := range existing {
		if strings.EqualFold(existing[i].Name, name) {
			res.Unchanged++
			return &existing[i], nil
		}
	}
	res.Created++
	return s.CreateLine(ctx, name)
}

func (s *Service) seedControlType(ctx context.Context, lineID int64, existing []model.ControlType, sct SeedControlType, res *SeedResult) (*model.ControlType, error) {
	name := strings.TrimSpace(sct.Name)
	for i := range existing {
		if strings.EqualFold(existing[i].Name, name) {
			res.Unchanged++
			return &existing[i], nil
		}
	}
	res.Created++
	return s.CreateControlType(ctx, model.ControlType{Name: name, Description: sct.Description, LineID: lineID})
}

func (s *Service) seedPresentation(ctx context.Context, lineID int64, existing []model.Presentation, name string, res *SeedResult) (*model.Presentation, error) {
	name = strings.TrimSpace(name)
	for i := range existing {
		if strings.EqualFold(existing[i].Name, name) {
			res.Unchanged++
			return &existing[i], nil
		}
	}
	res.Created++
	return s.CreatePresentation(ctx, model.Presentation{Name: name, LineID: lineID})
}

func (s *Service) seedParameters(ctx context.Context, controlTypeID int64, seeds []SeedParameter, res *SeedResult) (map[string]*model.Parameter, error) {
	existing, err := s.store.ListParameters(ctx, controlTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: seed list parameters of control type %d", controlTypeID)
	}
	byName := make(map[string]*model.Parameter, len(seeds))

	for _, sp := range seeds {
		want := model.Parameter{
			Name: strings.TrimSpace(sp.Name), Description: sp.Description,
			Kind: model.ParameterKind(sp.Kind), Unit: sp.Unit,
			Lower: sp.Lower, Upper: sp.Upper, ControlTypeID: controlTypeID,
		}
		if err := checkParameter(&want); err != nil {
			return nil, err
		}

		var cur *model.Parameter
		for i := range existing {
			if strings.EqualFold(existing[i].Name, want.Name) {
				cur = &existing[i]
				break
			}
		}

		var p *model.Parameter
		switch {
		case cur == nil:
			if p, err = s.CreateParameter(ctx, want); err != nil {
				return nil, err
			}
			res.Created++
		case sameDefinition(*cur, want):
			p = cur
			res.Unchanged++
		default:
			want.ID = cur.ID
			if p, err = s.UpdateParameter(ctx, want); err != nil {
				return nil, err
			}
			res.Updated++
		}
		byName[strings.ToLower(want.Name)] = p
	}
	return byName, nil
}

func sameDefinition(a, b model.Parameter) bool {
	return a.Description == b.Description && a.Kind == b.Kind && a.Unit == b.Unit &&
		sameLimit(a.Lower, b.Lower) && sameLimit(a.Upper, b.Upper)
}

func sameLimit(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
