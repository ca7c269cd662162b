// Package store holds the scheduler's two persistence concerns: an
// in-memory sender/recipient directory with segment filtering, and a
// bbolt-backed record of each task's lifecycle status.
package store

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sendwave/campaignsched/internal/types"
)

// SegmentFilter evaluates a compiled expression against a recipient's
// free-form fields, used to carve a named segment out of the full
// recipient population before a task is planned.
type SegmentFilter interface {
	Matches(recipient types.Recipient) bool
}

type compiledFilter struct {
	program *vm.Program
}

func (c *compiledFilter) Matches(r types.Recipient) bool {
	env := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		env[strings.ToLower(k)] = strings.ToLower(v)
	}
	env["email"] = strings.ToLower(r.Email)

	result, err := expr.Run(c.program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

// segment call syntax rewritten to expr's native operators, e.g.
// contains(plan, "pro") -> plan contains "pro". Mirrors the shorthand
// a non-technical operator would type into a segment definition.
var (
	containsRe   = regexp.MustCompile(`contains\s*\(\s*(\w+)\s*,\s*("[^"]*")\s*\)`)
	startsWithRe = regexp.MustCompile(`startsWith\s*\(\s*(\w+)\s*,\s*("[^"]*")\s*\)`)
	endsWithRe   = regexp.MustCompile(`endsWith\s*\(\s*(\w+)\s*,\s*("[^"]*")\s*\)`)
	compareRe    = regexp.MustCompile(`(\w+)\s*(==|!=)\s*("[^"]*")`)
	// expr binds unary `not` tighter than `==`, so `not tag == "x"` is
	// wrapped as `not (tag == "x")` to negate the whole comparison.
	notCompareRe = regexp.MustCompile(`\bnot\s+(\w+\s*(?:==|!=)\s*"[^"]*")`)
)

func lowerQuoted(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return `"` + strings.ToLower(s[1:len(s)-1]) + `"`
	}
	return s
}

func rewriteCallStyle(re *regexp.Regexp, op, input string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		return parts[1] + " " + op + " " + lowerQuoted(parts[2])
	})
}

// ParseSegmentFilter compiles a segment expression like
// `contains(plan, "pro") && not tag == "test"` into a SegmentFilter.
// Comparisons are case-insensitive and undefined fields evaluate to
// false rather than erroring, since recipient field sets vary.
func ParseSegmentFilter(input string) (SegmentFilter, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("store: empty segment expression")
	}

	input = rewriteCallStyle(containsRe, "contains", input)
	input = rewriteCallStyle(startsWithRe, "startsWith", input)
	input = rewriteCallStyle(endsWithRe, "endsWith", input)
	input = compareRe.ReplaceAllStringFunc(input, func(match string) string {
		parts := compareRe.FindStringSubmatch(match)
		if len(parts) != 4 {
			return match
		}
		return parts[1] + " " + parts[2] + " " + lowerQuoted(parts[3])
	})
	input = notCompareRe.ReplaceAllString(input, "not ($1)")

	program, err := expr.Compile(input, expr.Env(map[string]string{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("store: compile segment expression: %w", err)
	}
	return &compiledFilter{program: program}, nil
}

// DirectoryStore is the in-memory sender/recipient directory the
// planner and scheduler read from. It is not the task record store:
// senders and recipients here are reference data, not task runtime.
type DirectoryStore struct {
	mu         sync.RWMutex
	senders    map[string]types.Sender
	recipients map[string]types.Recipient
}

// NewDirectoryStore creates an empty directory.
func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		senders:    make(map[string]types.Sender),
		recipients: make(map[string]types.Recipient),
	}
}

// PutSender upserts a sender.
func (d *DirectoryStore) PutSender(s types.Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.ID] = s
}

// PutRecipient upserts a recipient.
func (d *DirectoryStore) PutRecipient(r types.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recipients[r.ID] = r
}

// EnabledSenderIDs returns the IDs of every sender with Enabled set,
// in insertion-independent sorted order for determinism.
func (d *DirectoryStore) EnabledSenderIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for id, s := range d.senders {
		if s.Enabled {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	return ids
}

// Segment returns, in sorted order, the IDs of every non-blacklisted
// recipient matching filter. A nil filter selects every
// non-blacklisted recipient.
func (d *DirectoryStore) Segment(filter SegmentFilter) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for id, r := range d.recipients {
		if r.Blacklisted {
			continue
		}
		if filter != nil && !filter.Matches(r) {
			continue
		}
		ids = append(ids, id)
	}
	sortStrings(ids)
	return ids
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		j := i
		for j > 0 && ss[j] < ss[j-1] {
			ss[j], ss[j-1] = ss[j-1], ss[j]
			j--
		}
	}
}
