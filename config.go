package arbor

import (
	"github.com/KilimcininKorOglu/arbor/internal/config"
	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// Config is the configuration of a store. It is fixed at creation.
type Config = config.Config

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// Logger receives diagnostics from a storage and its session.
type Logger = logging.Logger

// Kind identifies the variant of a node.
type Kind = node.Kind

// Node kinds.
const (
	KindDocumentRoot = node.KindDocumentRoot
	KindElement      = node.KindElement
	KindText         = node.KindText
	KindAttribute    = node.KindAttribute
	KindNamespace    = node.KindNamespace
)

// Reserved node keys.
const (
	NullKey         = node.NullKey
	DocumentRootKey = node.DocumentRootKey
)

// Type names given to inserted nodes.
const (
	elementType = "xs:untyped"
	atomicType  = "xs:untypedAtomic"
)
