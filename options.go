package offcache

import "time"

// SetOption customizes a single Set.
type SetOption func(*setOptions)

type setOptions struct {
	ttl        time.Duration
	ttlSet     bool
	tags       []string
	priority   Priority
	noSync     bool
	metadata   map[string]any
	entityType string
}

// WithTTL overrides Config.DefaultTTL. 0 means the entry never expires.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
		o.ttlSet = true
	}
}

func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = append(o.tags, tags...) }
}

func WithPriority(p Priority) SetOption {
	return func(o *setOptions) { o.priority = p }
}

// WithoutSync stores the value locally without enqueuing an operation.
func WithoutSync() SetOption {
	return func(o *setOptions) { o.noSync = true }
}

func WithMetadata(md map[string]any) SetOption {
	return func(o *setOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v
		}
	}
}

// WithEntityType sets the entity type of the enqueued operation
// (default "cache_entry").
func WithEntityType(t string) SetOption {
	return func(o *setOptions) { o.entityType = t }
}

func buildSetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if !o.priority.Valid() {
		o.priority = PriorityNormal
	}
	o.tags = dedupe(o.tags)
	return o
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
