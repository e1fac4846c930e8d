// Package catalog implements administrator operations on the quality
// hierarchy. Every write that could leave a parameter with inverted limits
// is rejected with model.ErrInvalidLimits before it reaches the store.
package catalog

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BrendaWanda/ControlCalidad/internal/hierarchy"
	"github.com/BrendaWanda/ControlCalidad/internal/model"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

// Service manages lines, presentations, control types, parameters and
// overrides.
type Service struct {
	store store.Store
}

// New returns a catalog Service backed by st.
func New(st store.Store) *Service {
	return &Service{store: st}
}

func requireName(entity, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", eris.Wrapf(model.ErrInvalidField, "catalog: %s name is required", entity)
	}
	return name, nil
}

// CreateLine adds a production line.
func (s *Service) CreateLine(ctx context.Context, name string) (*model.Line, error) {
	name, err := requireName("line", name)
	if err != nil {
		return nil, err
	}
	l, err := s.store.CreateLine(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: create line %q", name)
	}
	zap.L().Info("catalog: line created", zap.Int64("line_id", l.ID), zap.String("name", l.Name))
	return l, nil
}

// CreatePresentation adds a presentation to an existing line.
func (s *Service) CreatePresentation(ctx context.Context, p model.Presentation) (*model.Presentation, error) {
	var err error
	if p.Name, err = requireName("presentation", p.Name); err != nil {
		return nil, err
	}
	if _, err := s.store.GetLine(ctx, p.LineID); err != nil {
		return nil, eris.Wrapf(err, "catalog: presentation %q", p.Name)
	}
	out, err := s.store.CreatePresentation(ctx, p)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: create presentation %q", p.Name)
	}
	zap.L().Info("catalog: presentation created", zap.Int64("presentation_id", out.ID), zap.Int64("line_id", out.LineID))
	return out, nil
}

// CreateControlType adds a control type to an existing line.
func (s *Service) CreateControlType(ctx context.Context, ct model.ControlType) (*model.ControlType, error) {
	var err error
	if ct.Name, err = requireName("control type", ct.Name); err != nil {
		return nil, err
	}
	if _, err := s.store.GetLine(ctx, ct.LineID); err != nil {
		return nil, eris.Wrapf(err, "catalog: control type %q", ct.Name)
	}
	out, err := s.store.CreateControlType(ctx, ct)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: create control type %q", ct.Name)
	}
	zap.L().Info("catalog: control type created", zap.Int64("control_type_id", out.ID), zap.Int64("line_id", out.LineID))
	return out, nil
}

// CreateParameter adds a parameter to an existing control type.
func (s *Service) CreateParameter(ctx context.Context, p model.Parameter) (*model.Parameter, error) {
	if err := checkParameter(&p); err != nil {
		return nil, err
	}
	if _, err := s.store.GetControlType(ctx, p.ControlTypeID); err != nil {
		return nil, eris.Wrapf(err, "catalog: parameter %q", p.Name)
	}
	out, err := s.store.CreateParameter(ctx, p)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: create parameter %q", p.Name)
	}
	zap.L().Info("catalog: parameter created", zap.Int64("parameter_id", out.ID), zap.String("kind", string(out.Kind)))
	return out, nil
}

// UpdateParameter replaces the editable fields of a parameter. The control
// type cannot change.
func (s *Service) UpdateParameter(ctx context.Context, p model.Parameter) (*model.Parameter, error) {
	if err := checkParameter(&p); err != nil {
		return nil, err
	}
	cur, err := s.store.GetParameter(ctx, p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: update parameter %d", p.ID)
	}
	p.ControlTypeID = cur.ControlTypeID
	if err := s.store.UpdateParameter(ctx, p); err != nil {
		return nil, eris.Wrapf(err, "catalog: update parameter %d", p.ID)
	}
	zap.L().Info("catalog: parameter updated", zap.Int64("parameter_id", p.ID))
	return s.store.GetParameter(ctx, p.ID)
}

// SetLimits changes only the base limits of a parameter.
func (s *Service) SetLimits(ctx context.Context, parameterID int64, lower, upper *float64) (*model.Parameter, error) {
	p, err := s.store.GetParameter(ctx, parameterID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: set limits %d", parameterID)
	}
	p.Lower, p.Upper = lower, upper
	return s.UpdateParameter(ctx, *p)
}

// DeleteParameter soft-deletes a parameter. Its records and alerts stay.
func (s *Service) DeleteParameter(ctx context.Context, id int64) error {
	if err := s.store.DeleteParameter(ctx, id); err != nil {
		return eris.Wrapf(err, "catalog: delete parameter %d", id)
	}
	zap.L().Info("catalog: parameter deleted", zap.Int64("parameter_id", id))
	return nil
}

// DeletePresentation soft-deletes a presentation.
func (s *Service) DeletePresentation(ctx context.Context, id int64) error {
	if err := s.store.DeletePresentation(ctx, id); err != nil {
		return eris.Wrapf(err, "catalog: delete presentation %d", id)
	}
	zap.L().Info("catalog: presentation deleted", zap.Int64("presentation_id", id))
	return nil
}

// SetOverride creates or replaces the override of a parameter on one
// presentation. The parameter's control type must be on the presentation's
// line and the resolved limits must not be inverted.
func (s *Service) SetOverride(ctx context.Context, o model.ParameterOverride) (*model.ParameterOverride, error) {
	if o.Kind != nil && !o.Kind.Valid() {
		return nil, eris.Wrapf(model.ErrInvalidField, "catalog: override kind %q", *o.Kind)
	}
	param, err := s.store.GetParameter(ctx, o.ParameterID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: override parameter %d", o.ParameterID)
	}
	pres, err := s.store.GetPresentation(ctx, o.PresentationID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: override presentation %d", o.PresentationID)
	}
	ct, err := s.store.GetControlType(ctx, param.ControlTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: override control type %d", param.ControlTypeID)
	}
	if ct.LineID != pres.LineID {
		return nil, eris.Wrapf(model.ErrIncompatibleHierarchy,
			"catalog: parameter %d is on line %d, presentation %d is on line %d", param.ID, ct.LineID, pres.ID, pres.LineID)
	}
	if _, err := hierarchy.Coalesce(*param, &o); err != nil {
		return nil, err
	}

	out, err := s.store.UpsertOverride(ctx, o)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: set override %d/%d", o.PresentationID, o.ParameterID)
	}
	zap.L().Info("catalog: override set",
		zap.Int64("presentation_id", o.PresentationID),
		zap.Int64("parameter_id", o.ParameterID),
	)
	return out, nil
}

// ClearOverride removes an override so the base definition applies again.
func (s *Service) ClearOverride(ctx context.Context, presentationID, parameterID int64) error {
	if err := s.store.DeleteOverride(ctx, presentationID, parameterID); err != nil {
		return eris.Wrapf(err, "catalog: clear override %d/%d", presentationID, parameterID)
	}
	return nil
}

// Tree is the catalog of one line.
type Tree struct {
	Line          model.Line           `json:"line"`
	Presentations []model.Presentation `json:"presentations"`
	ControlTypes  []ControlTypeTree    `json:"control_types"`
}

// ControlTypeTree is a control type with its parameters.
type ControlTypeTree struct {
	ControlType model.ControlType `json:"control_type"`
	Parameters  []model.Parameter `json:"parameters"`
}

// List returns the whole catalog, line by line.
func (s *Service) List(ctx context.Context) ([]Tree, error) {
	lines, err := s.store.ListLines(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list lines")
	}
	out := make([]Tree, 0, len(lines))
	for _, l := range lines {
		t := Tree{Line: l}
		if t.Presentations, err = s.store.ListPresentations(ctx, l.ID); err != nil {
			return nil, eris.Wrapf(err, "catalog: list presentations of line %d", l.ID)
		}
		cts, err := s.store.ListControlTypes(ctx, l.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: list control types of line %d", l.ID)
		}
		for _, ct := range cts {
			params, err := s.store.ListParameters(ctx, ct.ID)
			if err != nil {
				return nil, eris.Wrapf(err, "catalog: list parameters of control type %d", ct.ID)
			}
			t.ControlTypes = append(t.ControlTypes, ControlTypeTree{ControlType: ct, Parameters: params})
		}
		out = append(out, t)
	}
	return out, nil
}

// checkParameter normalises p and rejects invalid fields or inverted limits.
// CHECK parameters carry no limits.
func checkParameter(p *model.Parameter) error {
	var err error
	if p.Name, err = requireName("parameter", p.Name); err != nil {
		return err
	}
	p.Kind = model.ParameterKind(strings.ToUpper(strings.TrimSpace(string(p.Kind))))
	if !p.Kind.Valid() {
		return eris.Wrapf(model.ErrInvalidField, "catalog: parameter %q has unknown kind %q", p.Name, p.Kind)
	}
	if p.Kind == model.KindCheck {
		p.Lower, p.Upper = nil, nil
		return nil
	}
	if p.Lower != nil && p.Upper != nil && *p.Lower > *p.Upper {
		return eris.Wrapf(model.ErrInvalidLimits, "catalog: parameter %q lower %g > upper %g", p.Name, *p.Lower, *p.Upper)
	}
	return nil
}
