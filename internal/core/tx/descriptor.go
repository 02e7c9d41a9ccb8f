package tx

import (
	"errors"
	"slices"
)

// IsolationLevel is passed through to the resource on Begin.
// The empty value means the resource default.
type IsolationLevel string

const (
	IsolationDefault        IsolationLevel = ""
	IsolationReadCommitted  IsolationLevel = "read committed"
	IsolationRepeatableRead IsolationLevel = "repeatable read"
	IsolationSerializable   IsolationLevel = "serializable"
)

// Descriptor describes one attempted unit of work. It is immutable once built
// and is evaluated once per Execute call.
type Descriptor struct {
	propagation   Propagation
	noRollbackFor []func(error) bool
	readOnly      bool
	isolation     IsolationLevel
	name          string
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// NewDescriptor builds a Descriptor for the given propagation.
func NewDescriptor(p Propagation, opts ...Option) Descriptor {
	d := Descriptor{propagation: p}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName labels the unit of work in logs and trace spans.
func WithName(name string) Option {
	return func(d *Descriptor) { d.name = name }
}

// ReadOnly asks the resource for a read-only transaction when one is begun.
// It has no effect when the call joins an existing transaction.
func ReadOnly() Option {
	return func(d *Descriptor) { d.readOnly = true }
}

// WithIsolation sets the isolation level used when a transaction is begun.
func WithIsolation(level IsolationLevel) Option {
	return func(d *Descriptor) { d.isolation = level }
}

// NoRollbackFor exempts failures matching any of targets (errors.Is) from
// triggering a rollback. The failure is still returned to the caller.
func NoRollbackFor(targets ...error) Option {
	targets = slices.Clone(targets)
	return NoRollbackWhen(func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	})
}

// NoRollbackWhen exempts failures for which match returns true.
func NoRollbackWhen(match func(error) bool) Option {
	return func(d *Descriptor) {
		d.noRollbackFor = append(slices.Clip(d.noRollbackFor), match)
	}
}

func (d Descriptor) Propagation() Propagation { return d.propagation }
func (d Descriptor) IsReadOnly() bool          { return d.readOnly }
func (d Descriptor) Isolation() IsolationLevel { return d.isolation }

// Name returns the configured name or the propagation name.
func (d Descriptor) Name() string {
	if d.name != "" {
		return d.name
	}
	return d.propagation.String()
}

// RollsBackOn reports whether err should cause a rollback under this descriptor.
func (d Descriptor) RollsBackOn(err error) bool {
	if err == nil {
		return false
	}
	for _, match := range d.noRollbackFor {
		if match(err) {
			return false
		}
	}
	return true
}

// outcome is the classified result of running work: the error to hand back to
// the caller and whether it must roll the transaction back.
type outcome struct {
	err      error
	rollback bool
}

func (d Descriptor) classify(err error) outcome {
	return outcome{err: err, rollback: d.RollsBackOn(err)}
}

func (o outcome) failed() bool { return o.err != nil }
