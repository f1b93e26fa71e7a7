package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

func newTestMutator(h *fakeHost, events driven.EventPublisher, opts ...MutatorOption) *LayerMutator {
	m := NewLayerMutator(h, h, events, testMutationSettings(), "|br|", opts...)
	m.sleep = noSleep
	return m
}

func ptr[T any](v T) *T { return &v }

func TestLayerMutator_Resolve(t *testing.T) {
	h := newFakeHost()
	m := newTestMutator(h, nil)
	ctx := context.Background()

	layer, err := m.Resolve(ctx, domain.TargetRef{Document: h.doc, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(10), layer.ID)

	layer, err = m.Resolve(ctx, domain.TargetRef{Document: h.doc, Index: 2})
	require.NoError(t, err)
	assert.Equal(t, "Title 2", layer.Name)

	_, err = m.Resolve(ctx, domain.TargetRef{Document: h.doc, Index: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	assert.Contains(t, err.Error(), "not text")

	_, err = m.Resolve(ctx, domain.TargetRef{Document: h.doc, Index: 9})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}

func TestLayerMutator_Resolve_TargetPrefix(t *testing.T) {
	h := newFakeHost()
	cfg := testMutationSettings()
	cfg.TargetPrefix = "CONTENT"
	m := NewLayerMutator(h, h, nil, cfg, "|br|")

	_, err := m.Resolve(context.Background(), domain.TargetRef{Document: h.doc, Index: 1})
	assert.NoError(t, err)

	_, err = m.Resolve(context.Background(), domain.TargetRef{Document: h.doc, Index: 2})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}

func TestLayerMutator_ResetCache(t *testing.T) {
	h := newFakeHost()
	m := newTestMutator(h, nil)
	ctx := context.Background()
	ref := domain.TargetRef{Document: h.doc, Index: 1}

	_, err := m.Resolve(ctx, ref)
	require.NoError(t, err)

	// The cached binding survives a rename until the cache is reset.
	h.layer(10).Name = "renamed"
	_, err = m.Resolve(ctx, ref)
	require.NoError(t, err)

	m.ResetCache()
	_, err = m.Resolve(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}

func TestLayerMutator_ApplyField_ContentExpandsLineBreaks(t *testing.T) {
	h := newFakeHost()
	m := newTestMutator(h, nil)

	outcome, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1},
		ptr("Line1|br|Line2"), nil)

	require.NoError(t, err)
	assert.True(t, outcome.ContentApplied)
	assert.False(t, outcome.ModifierApplied)
	assert.Equal(t, "Line1\rLine2", h.layer(10).Text)
	assert.Equal(t, []string{domain.CmdSelect, domain.CmdSetText}, h.commandNames())
}

func TestLayerMutator_ApplyField_ContentRetriesThenFails(t *testing.T) {
	h := newFakeHost()
	h.failCmd = func(cmd domain.Command) error {
		if cmd.Name == domain.CmdSetText {
			return errors.New("host busy")
		}
		return nil
	}
	m := newTestMutator(h, nil)

	_, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1}, ptr("Hello"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMutation)
	var merr *domain.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{"set-text/1", "set-text/2"}, merr.Strategies)
	assert.Equal(t, "content1", merr.Target)
}

func TestLayerMutator_ApplyField_ScenarioC(t *testing.T) {
	// direct-property is silently ignored, command-by-id errors,
	// command-by-property sticks.
	h := newFakeHost()
	h.ignoreDirect = true
	h.failCmd = func(cmd domain.Command) error {
		if cmd.Name == domain.CmdSetTextStyle && cmd.Target.Form == domain.RefByID {
			return errors.New("command rejected")
		}
		return nil
	}
	events := &recordingPublisher{}
	m := newTestMutator(h, events)

	outcome, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1}, nil, ptr(24.0))

	require.NoError(t, err)
	assert.True(t, outcome.ModifierApplied)
	assert.InDelta(t, 24.0, h.layer(10).FontSize, 0.001)

	require.Len(t, outcome.Strategies, 3)
	assert.Equal(t, StrategyDirectProperty, outcome.Strategies[0].Name)
	assert.False(t, outcome.Strategies[0].Success)
	assert.Contains(t, outcome.Strategies[0].Error, "verify size")
	assert.Equal(t, StrategyCommandByID, outcome.Strategies[1].Name)
	assert.False(t, outcome.Strategies[1].Success)
	assert.Equal(t, StrategyCommandByProperty, outcome.Strategies[2].Name)
	assert.True(t, outcome.Strategies[2].Success)

	applied := events.ofType(domain.EventFieldApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, "content1", applied[0].Target)
	strategies, ok := applied[0].Data["strategies"].([]domain.StrategyOutcome)
	require.True(t, ok)
	assert.Len(t, strategies, 3)
}

func TestLayerMutator_ApplyField_VerifiesThroughGetCommand(t *testing.T) {
	h := newFakeHost()
	h.staleReads = map[int64]float64{10: 12}
	m := newTestMutator(h, nil)

	outcome, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1}, nil, ptr(18.05))

	require.NoError(t, err)
	require.Len(t, outcome.Strategies, 1)
	assert.Equal(t, StrategyDirectProperty, outcome.Strategies[0].Name)
	assert.Contains(t, h.commandNames(), domain.CmdGet)
}

func TestLayerMutator_ApplyField_AllModifierStrategiesFail(t *testing.T) {
	h := newFakeHost()
	h.ignoreDirect = true
	h.failCmd = func(cmd domain.Command) error {
		if cmd.Name == domain.CmdSetTextStyle {
			return errors.New("nope")
		}
		return nil
	}
	events := &recordingPublisher{}
	m := newTestMutator(h, events)

	outcome, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 2}, ptr("Hi"), ptr(30.0))

	var merr *domain.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "Title 2", merr.Target)
	assert.Equal(t,
		[]string{"set-text/1", StrategyDirectProperty, StrategyCommandByID, StrategyCommandByProperty},
		merr.Strategies)
	assert.True(t, outcome.ContentApplied)
	assert.False(t, outcome.ModifierApplied)
	assert.Empty(t, events.ofType(domain.EventFieldApplied))
}

func TestLayerMutator_ApplyField_CustomStrategies(t *testing.T) {
	h := newFakeHost()
	var order []string
	strategy := func(name string, fail bool) ModifierStrategy {
		return ModifierStrategy{Name: name, Write: func(ctx context.Context, target ResolvedTarget, size float64) error {
			order = append(order, name)
			if fail {
				return errors.New(name + " failed")
			}
			return h.SetFontSize(ctx, target.Document, target.Layer.ID, size)
		}}
	}
	m := newTestMutator(h, nil, WithModifierStrategies(strategy("a", true), strategy("b", true), strategy("c", false)))

	outcome, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1}, nil, ptr(9.0))

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Len(t, outcome.Strategies, 3)
}

func TestLayerMutator_ApplyField_Errors(t *testing.T) {
	h := newFakeHost()
	m := newTestMutator(h, nil)
	ctx := context.Background()

	_, err := m.ApplyField(ctx, domain.TargetRef{Document: h.doc, Index: 1}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.ApplyField(ctx, domain.TargetRef{Document: h.doc, Index: 3}, ptr("x"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	assert.Equal(t, domain.KindInvalidTarget, domain.KindOf(err))
}

func TestLayerMutator_ApplyField_Cancelled(t *testing.T) {
	h := newFakeHost()
	m := newTestMutator(h, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ApplyField(ctx, domain.TargetRef{Document: h.doc, Index: 1}, ptr("x"), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, h.commandNames(), domain.CmdSetText)
}

func TestLayerMutator_ApplyField_CommandsAddressBoundDocument(t *testing.T) {
	h := newFakeHost()
	h.ignoreDirect = true
	h.failCmd = func(cmd domain.Command) error {
		if cmd.Name == domain.CmdSetTextStyle && cmd.Target.Form == domain.RefByID {
			return errors.New("command rejected")
		}
		return nil
	}
	m := newTestMutator(h, nil)

	_, err := m.ApplyField(context.Background(), domain.TargetRef{Document: h.doc, Index: 1}, ptr("Hi"), ptr(16.0))
	require.NoError(t, err)

	require.NotEmpty(t, h.commands)
	for _, cmd := range h.commands {
		assert.Equal(t, h.doc.ID, cmd.Target.DocumentID, cmd.Name)
	}
}
