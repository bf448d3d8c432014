package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"grocerysync/internal/pricing"
	"grocerysync/pkg/csvio"
)

var (
	ErrAmbiguous     = errors.New("ambiguous match")
	ErrUnresolvedTag = errors.New("unresolved tag")
	ErrInvalidRow    = errors.New("invalid row")
)

// invalidErrs mean the row itself is bad rather than the backend.
var invalidErrs = []error{
	ErrInvalidRow,
	pricing.ErrInvalidNumber,
	pricing.ErrInvalidDate,
	csvio.ErrShortRow,
	csvio.ErrMalformedRow,
}

type Outcome int

const (
	NoOp Outcome = iota
	Created
	Updated
	Deactivated
	SkipAmbiguous
	SkipUnresolved
	SkipInvalid
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoOp:
		return "noop"
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deactivated:
		return "deactivated"
	case SkipAmbiguous:
		return "skip_ambiguous"
	case SkipUnresolved:
		return "skip_unresolved"
	case SkipInvalid:
		return "skip_invalid"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (o Outcome) Skipped() bool {
	return o == SkipAmbiguous || o == SkipUnresolved || o == SkipInvalid
}

// Ops counts the backend writes a row issued.
type Ops struct {
	Created     int
	Updated     int
	Deactivated int
	Deleted     int
}

func (o *Ops) Add(other Ops) {
	o.Created += other.Created
	o.Updated += other.Updated
	o.Deactivated += other.Deactivated
	o.Deleted += other.Deleted
}

// Result is what one row did.
type Result struct {
	Key     string
	Line    int
	Outcome Outcome
	Ops     Ops
	Err     error
}

func Done(key string, outcome Outcome, ops Ops) Result {
	return Result{Key: key, Outcome: outcome, Ops: ops}
}

// Skip classifies err into the matching skip outcome, or Failed for anything else.
func Skip(key string, err error) Result {
	return Result{Key: key, Outcome: Classify(err), Err: err}
}

func Classify(err error) Outcome {
	switch {
	case err == nil:
		return NoOp
	case errors.Is(err, ErrAmbiguous):
		return SkipAmbiguous
	case errors.Is(err, ErrUnresolvedTag):
		return SkipUnresolved
	case isInvalid(err):
		return SkipInvalid
	}
	return Failed
}

func isInvalid(err error) bool {
	for _, target := range invalidErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type Summary struct {
	Rows     int
	Outcomes map[Outcome]int
	Ops      Ops
	Results  []Result
}

func NewSummary() Summary {
	return Summary{Outcomes: map[Outcome]int{}}
}

func (s *Summary) Add(r Result) {
	if s.Outcomes == nil {
		s.Outcomes = map[Outcome]int{}
	}
	s.Rows++
	s.Outcomes[r.Outcome]++
	s.Ops.Add(r.Ops)
	s.Results = append(s.Results, r)
}

func (s *Summary) Merge(other Summary) {
	for _, r := range other.Results {
		s.Add(r)
	}
}

func (s Summary) Count(o Outcome) int {
	return s.Outcomes[o]
}

func (s Summary) Skipped() int {
	return s.Outcomes[SkipAmbiguous] + s.Outcomes[SkipUnresolved] + s.Outcomes[SkipInvalid]
}

// Failures returns the rows that were skipped or failed.
func (s Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Outcome.Skipped() || r.Outcome == Failed {
			out = append(out, r)
		}
	}
	return out
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows=%d created=%d updated=%d deactivated=%d noop=%d skipped=%d failed=%d",
		s.Rows, s.Outcomes[Created], s.Outcomes[Updated], s.Outcomes[Deactivated], s.Outcomes[NoOp],
		s.Skipped(), s.Outcomes[Failed])
	fmt.Fprintf(&b, " writes(created=%d updated=%d deactivated=%d deleted=%d)",
		s.Ops.Created, s.Ops.Updated, s.Ops.Deactivated, s.Ops.Deleted)
	return b.String()
}
