package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/subscription"
)

// Validation error codes (E200-E299)
const (
	// Connector errors (E201-E209)
	ErrDuplicateConnector = "E201" // connector declared twice
	ErrNoConnectors       = "E202" // configuration declares no connector

	// Subscription errors (E210-E219)
	ErrUnknownConnector  = "E210" // subscription references an undeclared connector
	ErrInvalidKind       = "E211" // kind is not "document" or "object"
	ErrInvalidProcess    = "E212" // unknown process type
	ErrInvalidTaskType   = "E213" // unknown task type
	ErrTaskKindMismatch  = "E214" // task type never reaches this kind
	ErrInvalidPattern    = "E215" // pattern is not valid UTF-8 or does not compile
	ErrIrrelevantPattern = "E216" // pattern set on a dimension the kind ignores

	// Object type errors (E220-E229)
	ErrDuplicateObjectType = "E220" // object type declared twice or shadows a built-in
	ErrMissingKeyColumn    = "E221" // id or guid column missing
	ErrSiteScopeColumn     = "E222" // site-scoped type without site id column
	ErrUnknownDependency   = "E223" // dependency references an unknown object type
	ErrInvalidDependency   = "E224" // dependency without column
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled configuration. Returns all errors found
// (does not fail-fast).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateConnectors(cfg)...)

	types := ir.NewObjectTypes()
	errs = append(errs, validateObjectTypes(cfg, types)...)

	connectors := make(map[string]bool, len(cfg.Connectors))
	for _, c := range cfg.Connectors {
		connectors[c.Name] = true
	}
	matcher := subscription.NewMatcher()
	for i, sub := range cfg.Subscriptions {
		errs = append(errs, validateSubscription(i, sub, connectors, matcher)...)
	}
	return errs
}

func validateConnectors(cfg *Config) []ValidationError {
	var errs []ValidationError

	// E202: nothing can be delivered without a connector
	if len(cfg.Connectors) == 0 {
		errs = append(errs, ValidationError{
			Field:   "connector",
			Message: "at least one connector is required",
			Code:    ErrNoConnectors,
		})
	}

	seen := make(map[string]bool)
	for i, c := range cfg.Connectors {
		// E201: duplicate connector name
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("connector[%d]", i),
				Message: fmt.Sprintf("duplicate connector name: %q", c.Name),
				Code:    ErrDuplicateConnector,
			})
		}
		seen[c.Name] = true
	}
	return errs
}

// validateObjectTypes registers every configured type into types so that
// dependencies may reference types declared later in the file.
func validateObjectTypes(cfg *Config, types *ir.ObjectTypes) []ValidationError {
	var errs []ValidationError

	declared := make(map[string]bool)
	for _, info := range cfg.ObjectTypes {
		field := fmt.Sprintf("object_type.%q", info.Name)
		key := strings.ToLower(info.Name)

		// E220: duplicate or built-in name
		if _, builtin := types.Lookup(info.Name); builtin || declared[key] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("object type %q is already defined", info.Name),
				Code:    ErrDuplicateObjectType,
			})
			continue
		}
		declared[key] = true

		// E221: identity columns
		if info.IDColumn == "" || info.GUIDColumn == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "id and guid columns are required",
				Code:    ErrMissingKeyColumn,
			})
			continue
		}

		// E222: site scope needs a column to scope by
		if info.SiteScoped && info.SiteIDColumn == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".site_id",
				Message: "site-scoped object types need a site id column",
				Code:    ErrSiteScopeColumn,
			})
			continue
		}

		// Dependencies are checked below, once every type is known.
		shape := info
		shape.Dependencies = nil
		if err := types.Register(shape); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
				Code:    ErrMissingKeyColumn,
			})
		}
	}

	for _, info := range cfg.ObjectTypes {
		for j, dep := range info.Dependencies {
			field := fmt.Sprintf("object_type.%q.dependencies[%d]", info.Name, j)

			// E224: dependency column
			if strings.TrimSpace(dep.Column) == "" {
				errs = append(errs, ValidationError{
					Field:   field + ".column",
					Message: "dependency column is required",
					Code:    ErrInvalidDependency,
				})
			}

			// E223: dependency target
			if _, ok := types.Lookup(dep.ObjectType); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".object_type",
					Message: fmt.Sprintf("unknown object type %q", dep.ObjectType),
					Code:    ErrUnknownDependency,
				})
			}
		}
	}
	return errs
}

func validateSubscription(i int, sub SubscriptionSpec, connectors map[string]bool, matcher *subscription.Matcher) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("subscription[%d]", i)
	add := func(suffix, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + suffix,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    sub.Line,
		})
	}

	// E210: connector must be declared
	if !connectors[sub.Connector] {
		add(".connector", ErrUnknownConnector, "connector %q is not declared", sub.Connector)
	}

	// E212: process type
	if _, err := ir.ParseProcessType(sub.Process); err != nil {
		add(".process", ErrInvalidProcess, "%v", err)
	}

	// E213: task type
	tt, err := ir.ParseTaskType(sub.Task)
	if err != nil {
		add(".task", ErrInvalidTaskType, "%v", err)
	}

	// E211/E214/E216: kind decides which task types and patterns apply
	type dim struct{ name, value string }
	var ignored []dim
	switch sub.Kind {
	case KindDocument:
		if err == nil && tt != ir.TaskTypeAll && !tt.IsDocument() {
			add(".task", ErrTaskKindMismatch, "%s tasks never reach document subscriptions", tt)
		}
		ignored = []dim{{"code_name", sub.CodeName}}
	case KindObject:
		if err == nil && tt != ir.TaskTypeAll && tt.IsDocument() {
			add(".task", ErrTaskKindMismatch, "%s tasks never reach object subscriptions", tt)
		}
		ignored = []dim{{"alias_path", sub.AliasPath}, {"culture", sub.Culture}, {"class_name", sub.ClassName}}
	default:
		add(".kind", ErrInvalidKind, "kind must be %q or %q, got %q", KindDocument, KindObject, sub.Kind)
	}
	for _, d := range ignored {
		if d.value != "" {
			add("."+d.name, ErrIrrelevantPattern, "%s subscriptions ignore %s", sub.Kind, d.name)
		}
	}

	// E215: patterns
	patterns := []dim{
		{"site", sub.Site},
		{"object_type", sub.ObjectType},
		{"code_name", sub.CodeName},
		{"alias_path", sub.AliasPath},
		{"culture", sub.Culture},
		{"class_name", sub.ClassName},
	}
	for _, p := range patterns {
		if p.value == "" {
			continue
		}
		if !utf8.ValidString(p.value) {
			add("."+p.name, ErrInvalidPattern, "pattern is not valid UTF-8")
			continue
		}
		if _, err := matcher.Compile(p.value, false); err != nil {
			add("."+p.name, ErrInvalidPattern, "%v", err)
		}
	}
	return errs
}
