package pysem

import (
	"errors"

	"github.com/jward/pysem/internal/assist"
	"github.com/jward/pysem/internal/config"
	"github.com/jward/pysem/internal/dynamicoi"
	"github.com/jward/pysem/internal/occurrences"
	"github.com/jward/pysem/internal/refactor"
	"github.com/jward/pysem/internal/store"
)

// Public type aliases for internal types used in the Engine API. These are
// Go type aliases (=), identical to the internal types at compile time.

type Store = store.Store
type CallRecord = store.CallRecord
type Descriptor = store.Descriptor
type Record = dynamicoi.Record
type Occurrence = occurrences.Occurrence
type FileOccurrences = occurrences.FileOccurrences
type OccurrenceOption = occurrences.Option
type ChangeSet = refactor.ChangeSet
type Change = refactor.Change
type Move = refactor.Move
type Proposal = assist.Proposal
type Config = config.Config

// Occurrence search options.
var (
	// OnlyCalls keeps call sites only.
	OnlyCalls = occurrences.WithFunctionCalls
	// WholePrimary reports whole dotted primaries ending in the name.
	WholePrimary = occurrences.WithWholePrimary
	// SkipImports leaves out occurrences inside import statements.
	SkipImports = occurrences.WithoutImports
)

// Errors returned by the Engine, in addition to those of its subsystems
// re-exported here.
var (
	ErrNotAClass   = errors.New("pysem: offset is not on a class")
	ErrNoBinding   = refactor.ErrNoBinding
	ErrInvalidName = refactor.ErrInvalidName
)
