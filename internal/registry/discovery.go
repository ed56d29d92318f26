package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type contributionKind int

const (
	kindAbsent contributionKind = iota
	kindMalformed
	kindBroken
	kindProvided
	kindFailed
)

// Contribution is what a module reports during discovery.
type Contribution struct {
	kind        contributionKind
	reason      string
	err         error
	descriptors []Descriptor
}

// Absent means the module offers no reports.
func Absent() Contribution {
	return Contribution{kind: kindAbsent}
}

// Malformed means the module exposes something that is not a descriptor list.
// Discovery skips it.
func Malformed(reason string) Contribution {
	return Contribution{kind: kindMalformed, reason: reason}
}

// Broken means the module tried to contribute reports but failed. Discovery
// aborts on it.
func Broken(err error) Contribution {
	return Contribution{kind: kindBroken, err: err}
}

// Provided lists the module's reports. An empty list is allowed.
func Provided(descs ...Descriptor) Contribution {
	return Contribution{kind: kindProvided, descriptors: descs}
}

// Provider is implemented by every business module that can contribute reports.
type Provider interface {
	Name() string
	Reports() Contribution
}

// Discover asks each provider for its reports, in order, and returns a sealed
// registry. Modules without reports and malformed contributions are skipped,
// as is a module whose discovery failed unexpectedly (logged at warn). A
// broken contribution stops discovery with an error naming the module.
func Discover(ctx context.Context, providers []Provider, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := New()
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contribution := collect(p)
		switch contribution.kind {
		case kindAbsent:
			logger.Debug("module contributes no reports", zap.String("module", p.Name()))
		case kindMalformed:
			logger.Debug("module report contribution skipped",
				zap.String("module", p.Name()),
				zap.String("reason", contribution.reason))
		case kindFailed:
			logger.Warn("module report discovery failed, skipping module",
				zap.String("module", p.Name()),
				zap.Error(contribution.err))
		case kindBroken:
			return nil, fmt.Errorf("module %s: %w", p.Name(), contribution.err)
		case kindProvided:
			if err := reg.Register(contribution.descriptors...); err != nil {
				return nil, err
			}
			logger.Debug("module reports registered",
				zap.String("module", p.Name()),
				zap.Int("count", len(contribution.descriptors)))
		}
	}

	warnDuplicates(reg, logger)
	reg.Seal()
	logger.Info("report registry ready", zap.Int("reports", reg.Len()))
	return reg, nil
}

// collect runs a provider. Invalid descriptors become Broken; a panic becomes
// a failed contribution that discovery skips.
func collect(p Provider) (c Contribution) {
	defer func() {
		if r := recover(); r != nil {
			c = Contribution{kind: kindFailed, err: fmt.Errorf("report contribution panicked: %v", r)}
		}
	}()

	c = p.Reports()
	if c.kind != kindProvided {
		return c
	}
	for i := range c.descriptors {
		if c.descriptors[i].Module == "" {
			c.descriptors[i].Module = p.Name()
		}
		if err := c.descriptors[i].Validate(); err != nil {
			return Broken(err)
		}
	}
	return c
}

func warnDuplicates(reg *Registry, logger *zap.Logger) {
	seen := make(map[string]string)
	for _, d := range reg.All() {
		if first, dup := seen[d.Name]; dup {
			logger.Warn("duplicate report name, first registration wins",
				zap.String("report", d.Name),
				zap.String("module", d.Module),
				zap.String("kept_module", first))
			continue
		}
		seen[d.Name] = d.Module
	}
}
