package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
	"github.com/custodia-labs/layerforge/internal/fallback"
	"github.com/custodia-labs/layerforge/internal/logger"
)

// Modifier strategy names, in default order.
const (
	StrategyDirectProperty    = "direct-property"
	StrategyCommandByID       = "command-by-id"
	StrategyCommandByProperty = "command-by-property"
)

const resolveCacheSize = 256

var trailingIndex = regexp.MustCompile(`(\d+)\s*$`)

// ResolvedTarget is a target field bound to a concrete layer.
type ResolvedTarget struct {
	Document domain.DocumentRef
	Layer    domain.Layer
}

// layerRef addresses the layer by ID inside the bound document.
func (t ResolvedTarget) layerRef() domain.Reference {
	return domain.Reference{Form: domain.RefByID, DocumentID: t.Document.ID, LayerID: t.Layer.ID}
}

// ModifierStrategy is one way of writing a font size to a layer.
type ModifierStrategy struct {
	Name  string
	Write func(ctx context.Context, target ResolvedTarget, size float64) error
}

// DirectPropertyStrategy assigns the size on the in-memory layer handle.
func DirectPropertyStrategy(docs driven.DocumentAPI) ModifierStrategy {
	return ModifierStrategy{
		Name: StrategyDirectProperty,
		Write: func(ctx context.Context, t ResolvedTarget, size float64) error {
			return docs.SetFontSize(ctx, t.Document, t.Layer.ID, size)
		},
	}
}

// CommandByIDStrategy issues a text style command addressed by layer ID.
func CommandByIDStrategy(cmds driven.CommandExecutor) ModifierStrategy {
	return ModifierStrategy{
		Name: StrategyCommandByID,
		Write: func(ctx context.Context, t ResolvedTarget, size float64) error {
			_, err := cmds.Execute(ctx, domain.Command{
				Name:   domain.CmdSetTextStyle,
				Target: t.layerRef(),
				Args:   map[string]any{domain.ArgSize: size},
			}, domain.ExecOptions{Synchronous: true})
			return err
		},
	}
}

// CommandByPropertyStrategy issues a text style command addressed by
// property path on the named layer.
func CommandByPropertyStrategy(cmds driven.CommandExecutor) ModifierStrategy {
	return ModifierStrategy{
		Name: StrategyCommandByProperty,
		Write: func(ctx context.Context, t ResolvedTarget, size float64) error {
			_, err := cmds.Execute(ctx, domain.Command{
				Name: domain.CmdSetTextStyle,
				Target: domain.Reference{
					Form:       domain.RefByProperty,
					DocumentID: t.Document.ID,
					Name:       t.Layer.Name,
					Property:   domain.PropFontSize,
				},
				Args: map[string]any{domain.ArgSize: size},
			}, domain.ExecOptions{Synchronous: true})
			return err
		},
	}
}

// MutatorOption configures a LayerMutator.
type MutatorOption func(*LayerMutator)

// WithModifierStrategies replaces the modifier strategy order.
func WithModifierStrategies(strategies ...ModifierStrategy) MutatorOption {
	return func(m *LayerMutator) { m.strategies = strategies }
}

// LayerMutator applies content and size values to target layers.
type LayerMutator struct {
	docs       driven.DocumentAPI
	cmds       driven.CommandExecutor
	events     driven.EventPublisher
	cfg        domain.MutationSettings
	lineBreak  string
	strategies []ModifierStrategy
	resolved   *lru.Cache[string, int64]
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewLayerMutator creates a mutation adapter.
// The events publisher is optional.
func NewLayerMutator(
	docs driven.DocumentAPI,
	cmds driven.CommandExecutor,
	events driven.EventPublisher,
	cfg domain.MutationSettings,
	lineBreakToken string,
	opts ...MutatorOption,
) *LayerMutator {
	cache, _ := lru.New[string, int64](resolveCacheSize)
	if cfg.ContentAttempts <= 0 {
		cfg.ContentAttempts = 1
	}
	m := &LayerMutator{
		docs:      docs,
		cmds:      cmds,
		events:    events,
		cfg:       cfg,
		lineBreak: lineBreakToken,
		resolved:  cache,
		sleep:     sleepContext,
	}
	m.strategies = []ModifierStrategy{
		DirectPropertyStrategy(docs),
		CommandByIDStrategy(cmds),
		CommandByPropertyStrategy(cmds),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResetCache forgets resolved targets. Called at the start of every run.
func (m *LayerMutator) ResetCache() {
	m.resolved.Purge()
}

// Resolve maps a target reference onto a text layer whose name ends with
// the target index.
func (m *LayerMutator) Resolve(ctx context.Context, ref domain.TargetRef) (*domain.Layer, error) {
	key := fmt.Sprintf("%d:%d", ref.Document.ID, ref.Index)
	if id, ok := m.resolved.Get(key); ok {
		layer, err := m.docs.Layer(ctx, ref.Document, id)
		if err == nil && layer.IsText() {
			return layer, nil
		}
		m.resolved.Remove(key)
	}

	layers, err := m.docs.Layers(ctx, ref.Document)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}

	var wrongKind *domain.Layer
	for i := range layers {
		l := layers[i]
		if !m.matches(l.Name, ref.Index) {
			continue
		}
		if !l.IsText() {
			if wrongKind == nil {
				wrongKind = &l
			}
			continue
		}
		m.resolved.Add(key, l.ID)
		return &l, nil
	}

	if wrongKind != nil {
		return nil, fmt.Errorf("%w: layer %q is %s, not text", domain.ErrInvalidTarget, wrongKind.Name, wrongKind.Kind)
	}
	return nil, fmt.Errorf("%w: no text layer for index %d", domain.ErrInvalidTarget, ref.Index)
}

func (m *LayerMutator) matches(name string, index int) bool {
	if p := m.cfg.TargetPrefix; p != "" && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(p)) {
		return false
	}
	match := trailingIndex.FindStringSubmatch(name)
	if match == nil {
		return false
	}
	n, err := strconv.Atoi(match[1])
	return err == nil && n == index
}

// ApplyField writes content and/or a size to the target layer.
//
// Content has its line break token expanded and is written with a select
// plus setText command pair, verified by reading the text back. The size is
// written with each modifier strategy in order until a read-back confirms it.
// Fails with domain.ErrInvalidTarget when the target cannot be resolved and
// with a *domain.MutationError when a value could not be applied.
func (m *LayerMutator) ApplyField(
	ctx context.Context,
	ref domain.TargetRef,
	content *string,
	modifier *float64,
) (*domain.FieldOutcome, error) {
	if content == nil && modifier == nil {
		return nil, fmt.Errorf("%w: nothing to apply for index %d", domain.ErrInvalidInput, ref.Index)
	}

	layer, err := m.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	target := ResolvedTarget{Document: ref.Document, Layer: *layer}
	outcome := &domain.FieldOutcome{Target: layer.Name, LayerID: layer.ID}

	var (
		errs      []error
		attempted []string
	)

	if content != nil {
		attempts, err := m.applyContent(ctx, target, *content)
		attempted = append(attempted, fallback.Names(attempts)...)
		if err != nil {
			errs = append(errs, err)
		} else {
			outcome.ContentApplied = true
		}
	}

	if modifier != nil {
		attempts, err := m.applyModifier(ctx, target, *modifier)
		attempted = append(attempted, fallback.Names(attempts)...)
		outcome.Strategies = outcomes(attempts)
		if err != nil {
			errs = append(errs, err)
		} else {
			outcome.ModifierApplied = true
		}
	}

	if len(errs) > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		return outcome, &domain.MutationError{
			Target:     layer.Name,
			Strategies: attempted,
			Err:        errors.Join(errs...),
		}
	}

	m.publish(ref, outcome, modifier)
	return outcome, nil
}

func (m *LayerMutator) applyContent(ctx context.Context, t ResolvedTarget, raw string) ([]fallback.Attempt, error) {
	text := domain.ExpandLineBreaks(raw, m.lineBreak)

	write := func(ctx context.Context) (struct{}, error) {
		opts := domain.ExecOptions{Synchronous: true}
		ref := t.layerRef()
		if _, err := m.cmds.Execute(ctx, domain.Command{Name: domain.CmdSelect, Target: ref}, opts); err != nil {
			return struct{}{}, fmt.Errorf("select: %w", err)
		}
		if _, err := m.cmds.Execute(ctx, domain.Command{
			Name:   domain.CmdSetText,
			Target: ref,
			Args:   map[string]any{domain.ArgText: text},
		}, opts); err != nil {
			return struct{}{}, fmt.Errorf("set text: %w", err)
		}
		if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
			return struct{}{}, err
		}
		got, err := m.docs.Layer(ctx, t.Document, t.Layer.ID)
		if err != nil {
			return struct{}{}, fmt.Errorf("verify text: %w", err)
		}
		if got.Text != text {
			return struct{}{}, fmt.Errorf("verify text: host reports %q", got.Text)
		}
		return struct{}{}, nil
	}

	strategies := make([]fallback.Strategy[struct{}], 0, m.cfg.ContentAttempts)
	for i := 0; i < m.cfg.ContentAttempts; i++ {
		strategies = append(strategies, fallback.Strategy[struct{}]{
			Name: fmt.Sprintf("set-text/%d", i+1),
			Run:  write,
		})
	}

	_, attempts, err := fallback.FirstSuccess(ctx, strategies, fallback.OnAttempt(func(a fallback.Attempt) {
		logAttempt("content", t.Layer.Name, a)
	}))
	return attempts, err
}

func (m *LayerMutator) applyModifier(ctx context.Context, t ResolvedTarget, size float64) ([]fallback.Attempt, error) {
	strategies := make([]fallback.Strategy[struct{}], 0, len(m.strategies))
	for _, s := range m.strategies {
		s := s
		strategies = append(strategies, fallback.Strategy[struct{}]{
			Name: s.Name,
			Run: func(ctx context.Context) (struct{}, error) {
				if err := s.Write(ctx, t, size); err != nil {
					return struct{}{}, fmt.Errorf("write: %w", err)
				}
				if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
					return struct{}{}, err
				}
				return struct{}{}, m.verifySize(ctx, t, size)
			},
		})
	}

	_, attempts, err := fallback.FirstSuccess(ctx, strategies, fallback.OnAttempt(func(a fallback.Attempt) {
		logAttempt("modifier", t.Layer.Name, a)
	}))
	return attempts, err
}

// verifySize re-reads the font size through the document API and through a
// get command. Either channel agreeing within tolerance is enough.
func (m *LayerMutator) verifySize(ctx context.Context, t ResolvedTarget, want float64) error {
	var readings []string

	if layer, err := m.docs.Layer(ctx, t.Document, t.Layer.ID); err != nil {
		readings = append(readings, fmt.Sprintf("layer read: %v", err))
	} else if m.within(layer.FontSize, want) {
		return nil
	} else {
		readings = append(readings, fmt.Sprintf("layer read %.2f", layer.FontSize))
	}

	res, err := m.cmds.Execute(ctx, domain.Command{
		Name:   domain.CmdGet,
		Target: domain.Reference{
			Form:       domain.RefByID,
			DocumentID: t.Document.ID,
			LayerID:    t.Layer.ID,
			Property:   domain.PropFontSize,
		},
	}, domain.ExecOptions{Synchronous: true})
	if err != nil {
		readings = append(readings, fmt.Sprintf("get command: %v", err))
	} else if got, ok := res.Float(domain.PropFontSize); !ok {
		readings = append(readings, "get command: no fontSize")
	} else if m.within(got, want) {
		return nil
	} else {
		readings = append(readings, fmt.Sprintf("get command %.2f", got))
	}

	return fmt.Errorf("verify size %.2f: %s", want, strings.Join(readings, ", "))
}

func (m *LayerMutator) within(got, want float64) bool {
	return math.Abs(got-want) <= m.cfg.Tolerance
}

func (m *LayerMutator) publish(ref domain.TargetRef, o *domain.FieldOutcome, modifier *float64) {
	if m.events == nil {
		return
	}
	data := map[string]any{
		"index":            ref.Index,
		"layer_id":         o.LayerID,
		"content_applied":  o.ContentApplied,
		"modifier_applied": o.ModifierApplied,
	}
	if modifier != nil {
		data["modifier"] = *modifier
	}
	if len(o.Strategies) > 0 {
		data["strategies"] = o.Strategies
	}
	m.events.Publish(domain.RelayEvent{
		Type:    domain.EventFieldApplied,
		Target:  o.Target,
		Message: fmt.Sprintf("applied field %d to %s", ref.Index, o.Target),
		Data:    data,
	})
}

func outcomes(attempts []fallback.Attempt) []domain.StrategyOutcome {
	out := make([]domain.StrategyOutcome, 0, len(attempts))
	for _, a := range attempts {
		o := domain.StrategyOutcome{Name: a.Strategy, Success: a.Succeeded()}
		if a.Err != nil {
			o.Error = a.Err.Error()
		}
		out = append(out, o)
	}
	return out
}

func logAttempt(kind, target string, a fallback.Attempt) {
	if a.Succeeded() {
		logger.Debug("%s %s via %s ok (%s)", kind, target, a.Strategy, a.Elapsed)
		return
	}
	logger.Debug("%s %s via %s failed: %v", kind, target, a.Strategy, a.Err)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
