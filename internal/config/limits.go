package config

import "time"

const (
	// MaxEntryNameLength bounds a world-model entry's display name.
	MaxEntryNameLength = 255

	// MaxAliasLength bounds a single alias string.
	MaxAliasLength = 120

	// RelationshipMin and RelationshipMax clamp a character's relationship level (spec §3).
	RelationshipMin = -100
	RelationshipMax = 100

	// MaxClassifierRetries is the retry ceiling for schema parse failures (spec §4.6, §7).
	MaxClassifierRetries = 5

	// MaxProviderRetries is the retry ceiling for network/5xx provider errors (spec §7).
	MaxProviderRetries = 5

	// BackoffBase and BackoffCap bound the exponential retry delay (spec §7).
	BackoffBase = 500 * time.Millisecond
	BackoffCap  = 8 * time.Second
	BackoffJitter = 250 * time.Millisecond

	// ListModelsTimeout bounds Provider.listModels (spec §4.2).
	ListModelsTimeout = 15 * time.Second

	// DefaultRingBufferSize is K, the Event Bus debug trace depth (spec §4.1).
	DefaultRingBufferSize = 256

	// DefaultSuggestionCount is the number of creative-mode follow-ups (spec §4.8).
	DefaultSuggestionCount = 3
)
