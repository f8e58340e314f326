package embodiedflows

import (
	"fmt"
	"math"
	"slices"
)

// Instance is an assembly installed in a real world quantity, expressed in
// the natural unit of the assembly geometry kind.
type Instance struct {
	Assembly *Assembly
	Quantity float64
}

// BuiltAsset groups assembly instances. It performs no arithmetic, the
// analyzer treats each instance as an independent line item.
type BuiltAsset struct {
	name      string
	comments  string
	instances []Instance
}

type BuiltAssetOption func(b *BuiltAsset)

func WithBuiltAssetComments(comments string) BuiltAssetOption {
	return func(b *BuiltAsset) {
		b.comments = comments
	}
}

// NewBuiltAsset validates and groups the instances.
func NewBuiltAsset(name string, instances []Instance, opts ...BuiltAssetOption) (*BuiltAsset, error) {
	if name == "" {
		name = "Built Asset"
	}
	subject := fmt.Sprintf("built asset %q", name)

	if len(instances) == 0 {
		return nil, &EmptyAssemblyError{Name: subject}
	}

	for i, instance := range instances {
		if err := validateInstance(subject, i, instance); err != nil {
			return nil, err
		}
	}

	builtAsset := &BuiltAsset{
		name:      name,
		instances: slices.Clone(instances),
	}
	for _, opt := range opts {
		opt(builtAsset)
	}

	return builtAsset, nil
}

func validateInstance(subject string, i int, instance Instance) error {
	if instance.Assembly == nil {
		return &EmptyAssemblyError{Name: fmt.Sprintf("%s instance %d", subject, i+1)}
	}
	q := instance.Quantity
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return &InvalidQuantityError{Subject: fmt.Sprintf("%s assembly %q", subject, instance.Assembly.Name()), Value: q}
	}
	return nil
}

func (b *BuiltAsset) Name() string     { return b.name }
func (b *BuiltAsset) Comments() string { return b.comments }

// Instances returns a copy of the built asset instances in insertion order.
func (b *BuiltAsset) Instances() []Instance {
	return slices.Clone(b.instances)
}
