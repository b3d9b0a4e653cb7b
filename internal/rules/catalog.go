package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// constructors lists every rule in registration order. Diagnostics that
// share a line and rule id keep this order.
var constructors = []func() Rule{
	pinnedBaseImage,
	missingHealthcheck,
	exposeWithoutProtocol,
	missingLabel,
	relativeWorkdir,
	undefinedStageReference,
	duplicateStageAlias,
	shellFormCommand,
	multipleCommands,
	unknownInstruction,
	deprecatedMaintainer,
	fromFirst,

	combineRun,
	aptCacheCleanup,
	aptNoInstallRecommends,
	broadCopyBeforeInstall,
	addInsteadOfCopy,
	pipNoCacheDir,
	buildToolsInFinalImage,

	rootUser,
	secretInEnv,
	installWithoutUpdate,
	sudoUsage,
	curlPipeShell,
	remoteAdd,
}

var ErrDuplicateRule = errors.New("duplicate rule")

// Catalog is the immutable, ordered set of registered rules.
type Catalog struct {
	rules []Rule
	index map[string]int
}

// NewCatalog builds a catalog from rules in the given order. Ids and names
// must be unique.
func NewCatalog(rs ...Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]Rule, 0, len(rs)),
		index: make(map[string]int, 2*len(rs)),
	}
	for _, r := range rs {
		meta := r.Meta()
		for _, key := range []string{meta.ID, meta.Name} {
			if _, dup := c.index[key]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, key)
			}
			c.index[key] = len(c.rules)
		}
		c.rules = append(c.rules, r)
	}
	return c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	rs := make([]Rule, len(constructors))
	for i, newRule := range constructors {
		rs[i] = newRule()
	}
	c, err := NewCatalog(rs...)
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the catalog of all built-in rules, built on first use.
func Default() *Catalog {
	return defaultCatalog()
}

// Rules returns the rules in registration order. The returned slice is a
// copy.
func (c *Catalog) Rules() []Rule {
	return slices.Clone(c.rules)
}

// Len returns the number of registered rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Lookup finds a rule by id (case-insensitive) or by name.
func (c *Catalog) Lookup(key string) (Rule, bool) {
	i := c.Index(key)
	if i < 0 {
		return nil, false
	}
	return c.rules[i], true
}

// Index returns the registration position of a rule, or -1.
func (c *Catalog) Index(key string) int {
	if i, ok := c.index[key]; ok {
		return i
	}
	if i, ok := c.index[strings.ToUpper(key)]; ok {
		return i
	}
	if i, ok := c.index[strings.ToLower(key)]; ok {
		return i
	}
	return -1
}

// Metas returns the metadata of every rule in registration order.
func (c *Catalog) Metas() []Meta {
	metas := make([]Meta, len(c.rules))
	for i, r := range c.rules {
		metas[i] = r.Meta()
	}
	return metas
}
