// Package hierarchy resolves effective parameter definitions across the
// line → presentation → control type → parameter hierarchy.
package hierarchy

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

// Catalog is the read side of the configuration store the resolver needs.
// Getters return an error wrapping model.ErrNotFound for missing or deleted
// entities. GetOverride returns nil, nil when no override exists.
type Catalog interface {
	GetPresentation(ctx context.Context, id int64) (*model.Presentation, error)
	GetControlType(ctx context.Context, id int64) (*model.ControlType, error)
	GetParameter(ctx context.Context, id int64) (*model.Parameter, error)
	GetOverride(ctx context.Context, presentationID, parameterID int64) (*model.ParameterOverride, error)
	ListParameters(ctx context.Context, controlTypeID int64) ([]model.Parameter, error)
}

// Resolver computes effective parameter definitions.
type Resolver struct {
	catalog Catalog
}

// NewResolver returns a Resolver reading from catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the effective definition of parameterID as measured on
// presentationID.
func (r *Resolver) Resolve(ctx context.Context, parameterID, presentationID int64) (*model.EffectiveParameterDefinition, error) {
	param, err := r.catalog.GetParameter(ctx, parameterID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: parameter %d", parameterID)
	}
	pres, err := r.catalog.GetPresentation(ctx, presentationID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: presentation %d", presentationID)
	}
	ct, err := r.catalog.GetControlType(ctx, param.ControlTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: control type %d", param.ControlTypeID)
	}
	if ct.LineID != pres.LineID {
		return nil, eris.Wrapf(model.ErrIncompatibleHierarchy,
			"hierarchy: parameter %d is on line %d, presentation %d is on line %d",
			param.ID, ct.LineID, pres.ID, pres.LineID)
	}

	ov, err := r.catalog.GetOverride(ctx, presentationID, parameterID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: override %d/%d", presentationID, parameterID)
	}

	def, err := Coalesce(*param, ov)
	if err != nil {
		return nil, err
	}
	def.PresentationID = pres.ID
	def.LineID = pres.LineID
	return def, nil
}

// ListParametersFor resolves every parameter of controlTypeID for
// presentationID. The control type must be configured on the
// presentation's line.
func (r *Resolver) ListParametersFor(ctx context.Context, presentationID, controlTypeID int64) ([]model.EffectiveParameterDefinition, error) {
	pres, err := r.catalog.GetPresentation(ctx, presentationID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: presentation %d", presentationID)
	}
	ct, err := r.catalog.GetControlType(ctx, controlTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: control type %d", controlTypeID)
	}
	if ct.LineID != pres.LineID {
		return nil, eris.Wrapf(model.ErrIncompatibleHierarchy,
			"hierarchy: control type %d is on line %d, presentation %d is on line %d",
			ct.ID, ct.LineID, pres.ID, pres.LineID)
	}

	params, err := r.catalog.ListParameters(ctx, controlTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "hierarchy: list parameters for control type %d", controlTypeID)
	}

	defs := make([]model.EffectiveParameterDefinition, 0, len(params))
	for _, p := range params {
		ov, err := r.catalog.GetOverride(ctx, presentationID, p.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "hierarchy: override %d/%d", presentationID, p.ID)
		}
		def, err := Coalesce(p, ov)
		if err != nil {
			return nil, err
		}
		def.PresentationID = pres.ID
		def.LineID = pres.LineID
		defs = append(defs, *def)
	}
	return defs, nil
}

// Coalesce applies ov over base field by field. A nil ov yields the base
// definition. Inverted limits after resolution fail with
// model.ErrInvalidLimits.
func Coalesce(base model.Parameter, ov *model.ParameterOverride) (*model.EffectiveParameterDefinition, error) {
	def := &model.EffectiveParameterDefinition{
		ParameterID:   base.ID,
		ControlTypeID: base.ControlTypeID,
		Name:          base.Name,
		Kind:          base.Kind,
		Unit:          base.Unit,
		Lower:         copyFloat(base.Lower),
		Upper:         copyFloat(base.Upper),
	}

	if ov != nil {
		def.Overridden = true
		if ov.Kind != nil {
			def.Kind = *ov.Kind
		}
		if ov.Unit != nil {
			def.Unit = *ov.Unit
		}
		if ov.Lower != nil {
			def.Lower = copyFloat(ov.Lower)
		}
		if ov.Upper != nil {
			def.Upper = copyFloat(ov.Upper)
		}
	}

	if def.Kind == model.KindCheck {
		// Checks are pass/fail; numeric limits do not apply.
		def.Lower, def.Upper = nil, nil
		return def, nil
	}

	if def.Lower != nil && def.Upper != nil && *def.Lower > *def.Upper {
		return nil, eris.Wrapf(model.ErrInvalidLimits,
			"hierarchy: parameter %d resolves to lower %g > upper %g", base.ID, *def.Lower, *def.Upper)
	}
	def.Incomplete = def.Lower == nil || def.Upper == nil
	return def, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
