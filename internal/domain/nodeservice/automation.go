package nodeservice

import (
	"context"

	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// RegisterAutomation wires the feature fan-out of spec.md §4.J:
// Features declared exposeAction with runOnCreates/Updates/Deletes
// subscribe to the matching bus event, check their filters against
// the event's node, and invoke asynchronously. Failures are logged
// and never retried. Call once, after New, before serving traffic.
func (s *Service) RegisterAutomation() {
	s.bus.Subscribe(events.NodeCreated, s.automationSubscriber(func(f *nodes.FeatureAttrs) bool { return f.RunOnCreates }))
	s.bus.Subscribe(events.NodeUpdated, s.automationSubscriber(func(f *nodes.FeatureAttrs) bool { return f.RunOnUpdates }))
	s.bus.Subscribe(events.NodeDeleted, s.automationSubscriber(func(f *nodes.FeatureAttrs) bool { return f.RunOnDeletes }))
}

// RegisterCacheInvalidation subscribes the optional CacheInvalidator to
// every lifecycle event, evicting the changed node's parent-folder
// cache entry (spec.md §9). A no-op if Deps.Cache was left nil. Call
// once, alongside RegisterAutomation, before serving traffic.
func (s *Service) RegisterCacheInvalidation() {
	if s.cache == nil {
		return
	}
	sub := func(ctx context.Context, evt events.Event) error {
		if evt.Node == nil || evt.Node.Parent == "" {
			return nil
		}
		return s.cache.InvalidateParentMtime(ctx, evt.Node.Parent)
	}
	s.bus.Subscribe(events.NodeCreated, sub)
	s.bus.Subscribe(events.NodeUpdated, sub)
	s.bus.Subscribe(events.NodeDeleted, sub)
}

func (s *Service) automationSubscriber(runsOn func(*nodes.FeatureAttrs) bool) events.Subscriber {
	return func(ctx context.Context, evt events.Event) error {
		if evt.Node == nil {
			return nil
		}
		features, err := s.repo.GetChildren(ctx, nodes.FeaturesFolderUUID)
		if err != nil {
			return err
		}
		record := evt.Node.ToRecord()
		for _, feature := range features {
			if !feature.IsFeatureLike() || feature.Feature == nil {
				continue
			}
			if !feature.Feature.ExposeAction || !runsOn(feature.Feature) {
				continue
			}
			if !s.filters.Matches(record, feature.Feature.Filter) {
				continue
			}
			go s.invokeFeature(feature, evt.Node)
		}
		return nil
	}
}

// invokeFeature runs in its own goroutine so a slow or failing feature
// never blocks the publishing operation (spec.md §5).
func (s *Service) invokeFeature(feature, target *nodes.Node) {
	ctx := context.Background()
	if s.invoker == nil {
		if s.log != nil {
			s.log.Warn("no feature invoker configured, skipping automation", "feature", feature.UUID, "target", target.UUID)
		}
		return
	}
	if err := s.invoker.Invoke(ctx, feature, target); err != nil && s.log != nil {
		s.log.Error("feature invocation failed", "feature", feature.UUID, "target", target.UUID, "error", err)
	}
}
