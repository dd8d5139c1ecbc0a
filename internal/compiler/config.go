package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/subscription"
)

// Subscription kinds.
const (
	KindDocument = "document"
	KindObject   = "object"
)

// Config is a compiled configuration file.
//
// The CUE shape is:
//
//	connector: search: { description: "site search index" }
//
//	subscription: [
//		{ connector: "search", kind: "document", process: "SyncSnapshot", alias_path: "/News/%" },
//		{ connector: "search", kind: "object", process: "AsyncSimple", object_type: "cms.user" },
//	]
//
//	object_type: "custom.widget": {
//		id: "WidgetID"
//		guid: "WidgetGUID"
//		code_name: "WidgetName"
//		dependencies: [{ column: "WidgetOwnerID", object_type: "cms.user", required: true }]
//	}
type Config struct {
	Connectors    []ConnectorSpec     `json:"connectors"`
	Subscriptions []SubscriptionSpec  `json:"subscriptions"`
	ObjectTypes   []ir.ObjectTypeInfo `json:"object_types,omitempty"`
}

// ConnectorSpec declares a connector.
type ConnectorSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SubscriptionSpec is one subscription as written in the file. Patterns
// are kept as text; Build turns the spec into a registered subscription.
type SubscriptionSpec struct {
	Connector  string `json:"connector"`
	Kind       string `json:"kind"`
	Process    string `json:"process"`
	Task       string `json:"task,omitempty"`
	Site       string `json:"site,omitempty"`
	ObjectType string `json:"object_type,omitempty"`
	CodeName   string `json:"code_name,omitempty"`
	AliasPath  string `json:"alias_path,omitempty"`
	Culture    string `json:"culture,omitempty"`
	ClassName  string `json:"class_name,omitempty"`

	// Line is the source line, for error messages.
	Line int `json:"-"`
}

// LoadConfig reads and compiles a CUE configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	return CompileConfig(v)
}

// CompileConfig parses a CUE value into a Config. It checks the shape of
// the file; Validate checks the semantics.
func CompileConfig(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{}
	var err error
	if cfg.Connectors, err = parseConnectors(v); err != nil {
		return nil, err
	}
	if cfg.Subscriptions, err = parseSubscriptions(v); err != nil {
		return nil, err
	}
	if cfg.ObjectTypes, err = parseObjectTypes(v); err != nil {
		return nil, err
	}
	return cfg, nil
}

func label(iter *cue.Iterator) string {
	return strings.Trim(iter.Selector().String(), `"`)
}

// optionalString returns the string at field, or "" when it is absent.
func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.MakePath(cue.Str(field)))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	s, err := optionalString(v, field)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func parseConnectors(v cue.Value) ([]ConnectorSpec, error) {
	connVal := v.LookupPath(cue.ParsePath("connector"))
	if !connVal.Exists() {
		return nil, &CompileError{
			Field:   "connector",
			Message: "at least one connector is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := connVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var connectors []ConnectorSpec
	for iter.Next() {
		desc, err := optionalString(iter.Value(), "description")
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, ConnectorSpec{Name: label(iter), Description: desc})
	}
	return connectors, nil
}

func parseSubscriptions(v cue.Value) ([]SubscriptionSpec, error) {
	subVal := v.LookupPath(cue.ParsePath("subscription"))
	if !subVal.Exists() {
		return nil, nil
	}

	list, err := subVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var subs []SubscriptionSpec
	for list.Next() {
		sub, err := parseSubscription(list.Value())
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseSubscription(v cue.Value) (SubscriptionSpec, error) {
	var (
		sub SubscriptionSpec
		err error
	)
	sub.Line = v.Pos().Line()

	if sub.Connector, err = requiredString(v, "connector"); err != nil {
		return sub, err
	}
	if sub.Kind, err = requiredString(v, "kind"); err != nil {
		return sub, err
	}
	if sub.Process, err = requiredString(v, "process"); err != nil {
		return sub, err
	}

	optional := []struct {
		field string
		dst   *string
	}{
		{"task", &sub.Task},
		{"site", &sub.Site},
		{"object_type", &sub.ObjectType},
		{"code_name", &sub.CodeName},
		{"alias_path", &sub.AliasPath},
		{"culture", &sub.Culture},
		{"class_name", &sub.ClassName},
	}
	for _, o := range optional {
		if *o.dst, err = optionalString(v, o.field); err != nil {
			return sub, err
		}
	}
	return sub, nil
}

func parseObjectTypes(v cue.Value) ([]ir.ObjectTypeInfo, error) {
	typesVal := v.LookupPath(cue.ParsePath("object_type"))
	if !typesVal.Exists() {
		return nil, nil
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var types []ir.ObjectTypeInfo
	for iter.Next() {
		info, err := parseObjectType(label(iter), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, info)
	}
	return types, nil
}

func parseObjectType(name string, v cue.Value) (ir.ObjectTypeInfo, error) {
	info := ir.ObjectTypeInfo{Name: name}

	columns := []struct {
		field string
		dst   *string
	}{
		{"id", &info.IDColumn},
		{"guid", &info.GUIDColumn},
		{"code_name", &info.CodeNameColumn},
		{"display_name", &info.DisplayNameColumn},
		{"site_id", &info.SiteIDColumn},
		{"parent_id", &info.ParentIDColumn},
		{"group_id", &info.GroupIDColumn},
	}
	for _, c := range columns {
		s, err := optionalString(v, c.field)
		if err != nil {
			return info, err
		}
		*c.dst = s
	}

	if scoped := v.LookupPath(cue.ParsePath("site_scoped")); scoped.Exists() {
		b, err := scoped.Bool()
		if err != nil {
			return info, formatCUEError(err)
		}
		info.SiteScoped = b
	}

	depsVal := v.LookupPath(cue.ParsePath("dependencies"))
	if !depsVal.Exists() {
		return info, nil
	}
	deps, err := depsVal.List()
	if err != nil {
		return info, formatCUEError(err)
	}
	for deps.Next() {
		dv := deps.Value()
		var dep ir.Dependency
		if dep.Column, err = requiredString(dv, "column"); err != nil {
			return info, err
		}
		if dep.ObjectType, err = requiredString(dv, "object_type"); err != nil {
			return info, err
		}
		if req := dv.LookupPath(cue.ParsePath("required")); req.Exists() {
			if dep.Required, err = req.Bool(); err != nil {
				return info, formatCUEError(err)
			}
		}
		info.Dependencies = append(info.Dependencies, dep)
	}
	return info, nil
}

// Build registers the configuration. The returned object type registry
// holds the built-in types plus the configured ones. Call Validate first
// for a complete list of problems; Build stops at the first.
func (c *Config) Build() (*subscription.Registry, *ir.ObjectTypes, error) {
	types := ir.NewObjectTypes()
	for _, info := range c.ObjectTypes {
		if err := types.Register(info); err != nil {
			return nil, nil, fmt.Errorf("register object type: %w", err)
		}
	}

	reg := subscription.NewRegistry()
	for _, conn := range c.Connectors {
		if err := reg.RegisterConnector(conn.Name); err != nil {
			return nil, nil, fmt.Errorf("register connector: %w", err)
		}
	}
	for i, spec := range c.Subscriptions {
		sub, err := spec.Subscription()
		if err != nil {
			return nil, nil, fmt.Errorf("subscription[%d]: %w", i, err)
		}
		if err := reg.Register(sub); err != nil {
			return nil, nil, fmt.Errorf("subscription[%d]: %w", i, err)
		}
	}
	return reg, types, nil
}

// Subscription converts the spec into a registrable subscription.
func (s SubscriptionSpec) Subscription() (subscription.Subscription, error) {
	pt, err := ir.ParseProcessType(s.Process)
	if err != nil {
		return nil, err
	}
	tt, err := ir.ParseTaskType(s.Task)
	if err != nil {
		return nil, err
	}
	base := subscription.Base{
		ConnectorName: s.Connector,
		ProcessType:   pt,
		TaskType:      tt,
		SiteName:      s.Site,
	}

	switch s.Kind {
	case KindDocument:
		return &subscription.DocumentSubscription{
			Base:          base,
			ObjectType:    s.ObjectType,
			NodeAliasPath: s.AliasPath,
			CultureCode:   s.Culture,
			ClassName:     s.ClassName,
		}, nil
	case KindObject:
		return &subscription.ObjectSubscription{
			Base:           base,
			ObjectType:     s.ObjectType,
			ObjectCodeName: s.CodeName,
		}, nil
	default:
		return nil, fmt.Errorf("unknown subscription kind %q", s.Kind)
	}
}
