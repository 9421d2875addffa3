// Package ordernumber builds human-readable, unique order numbers such as
// ORD-261019-142501-7QKD.
package ordernumber

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const (
	defaultPrefix      = "ORD"
	defaultMaxAttempts = 5
	suffixLen          = 4
)

var suffixEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Checker reports whether an order number is already taken.
type Checker interface {
	OrderNumberExists(ctx context.Context, number string) (bool, error)
}

// Config controls candidate shape and retry budget.
type Config struct {
	Prefix      string
	MaxAttempts int
}

// Generator produces order numbers with bounded collision retry.
type Generator struct {
	prefix      string
	maxAttempts int
	checker     Checker
	logg        *logger.Logger
	now         func() time.Time
	random      io.Reader
}

// New builds a generator. The checker may be swapped per transaction via
// WithChecker.
func New(cfg Config, checker Checker, logg *logger.Logger) (*Generator, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	prefix := strings.ToUpper(strings.TrimSpace(cfg.Prefix))
	if prefix == "" {
		prefix = defaultPrefix
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Generator{
		prefix:      prefix,
		maxAttempts: attempts,
		checker:     checker,
		logg:        logg,
		now:         time.Now,
		random:      rand.Reader,
	}, nil
}

// WithChecker returns a copy of the generator that checks uniqueness through c.
func (g *Generator) WithChecker(c Checker) *Generator {
	clone := *g
	clone.checker = c
	return &clone
}

// MaxAttempts is the retry budget shared with callers that retry on insert
// conflicts.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a number not yet used by any order. Running out of
// attempts is a configuration fault and surfaces as GenerationExhausted.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	if g.checker == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "order number checker not configured")
	}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := g.Candidate()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order number")
		}
		attemptCtx := g.logg.WithFields(ctx, map[string]any{
			"order_number": candidate,
			"attempt":      attempt,
		})

		taken, err := g.checker.OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number uniqueness")
		}
		if !taken {
			g.logg.Debug(attemptCtx, "order number generated")
			return candidate, nil
		}
		g.logg.Warn(attemptCtx, "order number collision")
	}

	err := pkgerrors.Newf(pkgerrors.CodeGenerationExhausted, "order number generation exhausted after %d attempts", g.maxAttempts)
	g.logg.Error(ctx, "order number generation exhausted", err)
	return "", err
}

// Candidate builds one unchecked order number.
func (g *Generator) Candidate() (string, error) {
	buf := make([]byte, 3)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", err
	}
	suffix := suffixEncoding.EncodeToString(buf)[:suffixLen]
	stamp := g.now().UTC().Format("060102-150405")
	return fmt.Sprintf("%s-%s-%s", g.prefix, stamp, suffix), nil
}

// GenerateFor runs Generate with uniqueness checked through checker, usually
// a repository bound to the caller's transaction.
func (g *Generator) GenerateFor(ctx context.Context, checker Checker) (string, error) {
	return g.WithChecker(checker).Generate(ctx)
}
