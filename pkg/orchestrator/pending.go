package orchestrator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/promptdeck/pkg/preset"
)

var (
	// ErrPendingNotFound is returned when no pending operation matches the
	// token.
	ErrPendingNotFound = errors.New("orchestrator: no pending operation for token")

	// ErrPendingExpired is returned when the completing input arrives after
	// the operation's deadline. The operation is discarded.
	ErrPendingExpired = errors.New("orchestrator: pending operation expired")
)

// PendingKind identifies what the completing input is for.
type PendingKind int

const (
	// PendingFragmentContent awaits the content of a new user fragment.
	PendingFragmentContent PendingKind = iota
	// PendingGroupCreate awaits the index list of a new group.
	PendingGroupCreate
	// PendingGroupUpdate awaits the replacement index list of a group.
	PendingGroupUpdate
)

// PendingOp is a suspended two-phase operation waiting for its second input.
// Nothing runs in the background while it waits; expiry is checked when the
// input arrives.
type PendingOp struct {
	Token    string
	Kind     PendingKind
	Name     string
	Deadline time.Time
}

// PendingResult is the outcome of a completed two-phase operation. Exactly
// one of Fragment and Indices is set, by Kind.
type PendingResult struct {
	Kind     PendingKind
	Name     string
	Fragment *preset.Fragment
	Indices  []int
}

// BeginAddFragment starts a two-phase fragment creation: the name is given
// now, the content arrives with CompletePending.
func (o *Orchestrator) BeginAddFragment(name string) (*PendingOp, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	if strings.TrimSpace(name) == "" {
		return nil, preset.ErrEmptyField
	}
	return o.begin(PendingFragmentContent, name), nil
}

// BeginGroupCreate starts a two-phase group creation awaiting the index list.
func (o *Orchestrator) BeginGroupCreate(name string) (*PendingOp, error) {
	return o.beginGroupOp(PendingGroupCreate, name)
}

// BeginGroupUpdate starts a two-phase group update awaiting the replacement
// index list. The group must already exist.
func (o *Orchestrator) BeginGroupUpdate(name string) (*PendingOp, error) {
	op, err := o.beginGroupOp(PendingGroupUpdate, name)
	if err != nil {
		return nil, err
	}
	if !o.groups.Has(op.Name) {
		delete(o.pending, op.Token)
		return nil, fmt.Errorf("orchestrator: group %q not found", op.Name)
	}
	return op, nil
}

func (o *Orchestrator) beginGroupOp(kind PendingKind, name string) (*PendingOp, error) {
	if o.current == "" {
		return nil, ErrNoPreset
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, preset.ErrEmptyField
	}
	return o.begin(kind, name), nil
}

func (o *Orchestrator) begin(kind PendingKind, name string) *PendingOp {
	op := &PendingOp{
		Token:    uuid.NewString(),
		Kind:     kind,
		Name:     name,
		Deadline: time.Now().Add(o.cfg.PendingTimeout()),
	}
	o.pending[op.Token] = op
	o.log.Debugf("pending %d for %q, token %s, deadline %s", kind, name, op.Token, op.Deadline.Format(time.RFC3339))
	return op
}

// CompletePending finishes a suspended operation with its second input. An
// expired operation is removed and reported; the underlying state is left
// untouched.
func (o *Orchestrator) CompletePending(token, input string) (*PendingResult, error) {
	op, ok := o.pending[token]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(o.pending, token)

	if time.Now().After(op.Deadline) {
		o.log.Warnf("pending operation for %q expired before input arrived", op.Name)
		return nil, fmt.Errorf("%w: %q", ErrPendingExpired, op.Name)
	}

	switch op.Kind {
	case PendingFragmentContent:
		f, err := o.AddFragment(op.Name, input)
		if err != nil {
			return nil, err
		}
		return &PendingResult{Kind: op.Kind, Name: op.Name, Fragment: f}, nil

	case PendingGroupCreate, PendingGroupUpdate:
		indices, err := ParseIndices(input)
		if err != nil {
			return nil, err
		}
		var kept []int
		if op.Kind == PendingGroupCreate {
			kept, err = o.CreateGroup(op.Name, indices)
		} else {
			kept, err = o.UpdateGroup(op.Name, indices)
		}
		if err != nil {
			return nil, err
		}
		return &PendingResult{Kind: op.Kind, Name: op.Name, Indices: kept}, nil
	}
	return nil, fmt.Errorf("orchestrator: unknown pending kind %d", op.Kind)
}

// ExpirePending drops every pending operation whose deadline has passed and
// returns how many were dropped.
func (o *Orchestrator) ExpirePending() int {
	now := time.Now()
	dropped := 0
	for token, op := range o.pending {
		if now.After(op.Deadline) {
			delete(o.pending, token)
			dropped++
		}
	}
	return dropped
}

// ParseIndices parses a comma or space separated list of zero-based indices.
func ParseIndices(input string) ([]int, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("orchestrator: no indices in %q", input)
	}
	out := make([]int, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: invalid index %q", field)
		}
		out = append(out, n)
	}
	return out, nil
}
