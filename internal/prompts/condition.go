package prompts

import (
	"strconv"
	"strings"
	"time"
)

// Condition is a boolean expression over a RuntimeContext. The set of
// implementations is closed; build them with ParseCondition.
type Condition interface {
	String() string
	isCondition()
}

// FieldKind identifies which part of the RuntimeContext a field reads.
type FieldKind int

const (
	FieldTurnCount FieldKind = iota
	FieldHour
	FieldMinute
	FieldWeekday
	FieldUser
	FieldConversation
	FieldMetric
)

// Field is a reference into the RuntimeContext. Key is set for the
// user, conversation and metric maps.
type Field struct {
	Kind FieldKind
	Key  string
}

func (f Field) String() string {
	switch f.Kind {
	case FieldTurnCount:
		return "turn_count"
	case FieldHour:
		return "hour"
	case FieldMinute:
		return "minute"
	case FieldWeekday:
		return "weekday"
	case FieldUser:
		return "user." + f.Key
	case FieldConversation:
		return "conversation." + f.Key
	case FieldMetric:
		return "metric." + f.Key
	}
	return "?"
}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
)

func (op CompareOp) apply(a, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	}
	return false
}

type (
	// Comparison compares a numeric field against a constant.
	Comparison struct {
		Field Field
		Op    CompareOp
		Value float64
	}
	// AttributeEquals matches a string attribute exactly. For weekday the
	// value is a lowercase day name.
	AttributeEquals struct {
		Field Field
		Value string
	}
	// TimeWindow holds when the local time of day falls in [Start, End).
	// Bounds are minutes since midnight; Start > End wraps past midnight.
	TimeWindow struct {
		Start, End int
	}
	// FlagSet holds when the named feature flag is true.
	FlagSet struct {
		Name string
	}
	// HasAttribute holds when the field has a value in the context.
	HasAttribute struct {
		Field Field
	}
	// Literal is a constant.
	Literal struct {
		Value bool
	}
	All struct {
		Terms []Condition
	}
	Any struct {
		Terms []Condition
	}
	Not struct {
		Term Condition
	}
)

func (Comparison) isCondition()      {}
func (AttributeEquals) isCondition() {}
func (TimeWindow) isCondition()      {}
func (FlagSet) isCondition()         {}
func (HasAttribute) isCondition()    {}
func (Literal) isCondition()         {}
func (All) isCondition()             {}
func (Any) isCondition()             {}
func (Not) isCondition()             {}

func (c Comparison) String() string {
	return c.Field.String() + " " + string(c.Op) + " " + strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func (c AttributeEquals) String() string {
	return c.Field.String() + " == " + strconv.Quote(c.Value)
}

func (c TimeWindow) String() string {
	return `time_between("` + clock(c.Start) + `", "` + clock(c.End) + `")`
}

func (c FlagSet) String() string { return "flag(" + strconv.Quote(c.Name) + ")" }

func (c HasAttribute) String() string { return "has(" + c.Field.String() + ")" }

func (c Literal) String() string { return strconv.FormatBool(c.Value) }

func (c All) String() string { return joinTerms(c.Terms, " && ") }

func (c Any) String() string { return joinTerms(c.Terms, " || ") }

func (c Not) String() string {
	switch c.Term.(type) {
	case Literal, FlagSet, HasAttribute, TimeWindow, Not:
		return "!" + c.Term.String()
	}
	return "!(" + c.Term.String() + ")"
}

func joinTerms(terms []Condition, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		switch t.(type) {
		case All, Any:
			parts[i] = "(" + t.String() + ")"
		default:
			parts[i] = t.String()
		}
	}
	return strings.Join(parts, sep)
}

func clock(minutes int) string {
	h, m := minutes/60, minutes%60
	return strconv.Itoa(h/10) + strconv.Itoa(h%10) + ":" + strconv.Itoa(m/10) + strconv.Itoa(m%10)
}

// truth is a three-valued result: a predicate over data missing from the
// context is unknown rather than false, so negation cannot turn it true.
type truth int8

const (
	truthFalse truth = iota
	truthTrue
	truthUnknown
)

func known(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

// Evaluate reports whether cond holds for rc. A condition that depends on
// data missing from rc does not hold, including under negation.
func Evaluate(cond Condition, rc RuntimeContext) bool {
	return evaluate(cond, rc) == truthTrue
}

func evaluate(cond Condition, rc RuntimeContext) truth {
	switch c := cond.(type) {
	case nil:
		return truthTrue
	case Literal:
		return known(c.Value)
	case Comparison:
		v, ok := numericField(c.Field, rc)
		if !ok {
			return truthUnknown
		}
		return known(c.Op.apply(v, c.Value))
	case AttributeEquals:
		v, ok := stringField(c.Field, rc)
		if !ok {
			return truthUnknown
		}
		return known(v == c.Value)
	case TimeWindow:
		if rc.Now.IsZero() {
			return truthUnknown
		}
		m := rc.Now.Hour()*60 + rc.Now.Minute()
		if c.Start <= c.End {
			return known(m >= c.Start && m < c.End)
		}
		return known(m >= c.Start || m < c.End)
	case FlagSet:
		// an unset flag is off
		return known(rc.Flags[c.Name])
	case HasAttribute:
		_, ok := stringField(c.Field, rc)
		return known(ok)
	case All:
		out := truthTrue
		for _, t := range c.Terms {
			switch evaluate(t, rc) {
			case truthFalse:
				return truthFalse
			case truthUnknown:
				out = truthUnknown
			}
		}
		return out
	case Any:
		out := truthFalse
		for _, t := range c.Terms {
			switch evaluate(t, rc) {
			case truthTrue:
				return truthTrue
			case truthUnknown:
				out = truthUnknown
			}
		}
		return out
	case Not:
		switch evaluate(c.Term, rc) {
		case truthTrue:
			return truthFalse
		case truthFalse:
			return truthTrue
		}
		return truthUnknown
	}
	return truthFalse
}

// EvaluateExpr parses expr and evaluates it. An empty expression holds.
func EvaluateExpr(expr string, rc RuntimeContext) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	cond, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return Evaluate(cond, rc), nil
}

func numericField(f Field, rc RuntimeContext) (float64, bool) {
	switch f.Kind {
	case FieldTurnCount:
		if rc.TurnCount == nil {
			return 0, false
		}
		return float64(*rc.TurnCount), true
	case FieldHour:
		return float64(rc.Now.Hour()), !rc.Now.IsZero()
	case FieldMinute:
		return float64(rc.Now.Minute()), !rc.Now.IsZero()
	case FieldWeekday:
		return float64(rc.Now.Weekday()), !rc.Now.IsZero()
	case FieldMetric:
		v, ok := rc.Metrics[f.Key]
		return v, ok
	case FieldUser, FieldConversation:
		s, ok := stringField(f, rc)
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v, err == nil
	}
	return 0, false
}

func stringField(f Field, rc RuntimeContext) (string, bool) {
	switch f.Kind {
	case FieldUser:
		v, ok := rc.User[f.Key]
		return v, ok
	case FieldConversation:
		v, ok := rc.Conversation[f.Key]
		return v, ok
	case FieldWeekday:
		if rc.Now.IsZero() {
			return "", false
		}
		return strings.ToLower(rc.Now.Weekday().String()), true
	case FieldMetric:
		v, ok := rc.Metrics[f.Key]
		return strconv.FormatFloat(v, 'f', -1, 64), ok
	default:
		v, ok := numericField(f, rc)
		return strconv.FormatFloat(v, 'f', -1, 64), ok
	}
}

func weekdayName(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if s == full || s == full[:3] {
			return full, true
		}
	}
	return "", false
}
