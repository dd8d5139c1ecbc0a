package subscription

import (
	"github.com/roach88/stagesync/internal/ir"
)

// Subscription is a standing registration of interest. It is implemented
// only by *ObjectSubscription and *DocumentSubscription.
type Subscription interface {
	Header() Base
	dimensions() []dimension
	family(t ir.TaskType) bool
}

// accepts reports whether sub sees tasks of type t: the type must belong
// to the subscription's family and pass its task type filter.
func accepts(sub Subscription, t ir.TaskType) bool {
	if !sub.family(t) {
		return false
	}
	filter := sub.Header().TaskType
	return filter == ir.TaskTypeAll || filter == t
}

// Base holds the fields common to every subscription.
type Base struct {
	ConnectorName string         `json:"connector"`
	ProcessType   ir.ProcessType `json:"process_type"`
	TaskType      ir.TaskType    `json:"task_type"`
	SiteName      string         `json:"site,omitempty"`
}

// Header returns the common fields.
func (b Base) Header() Base {
	return b
}

// ObjectSubscription matches object and media folder tasks.
type ObjectSubscription struct {
	Base
	ObjectType     string `json:"object_type,omitempty"`
	ObjectCodeName string `json:"code_name,omitempty"`
}

func (s *ObjectSubscription) family(t ir.TaskType) bool {
	return t.IsObject() || t.IsMediaFolder()
}

func (s *ObjectSubscription) dimensions() []dimension {
	return []dimension{
		{name: "site", pattern: s.SiteName, fold: true, attr: func(t *ir.Task) string { return t.SiteName }},
		{name: "object_type", pattern: s.ObjectType, attr: (*ir.Task).ObjectTypeName},
		{name: "code_name", pattern: s.ObjectCodeName, attr: func(t *ir.Task) string { return t.ObjectCodeName }},
	}
}

// DocumentSubscription matches document tasks.
type DocumentSubscription struct {
	Base
	ObjectType    string `json:"object_type,omitempty"`
	NodeAliasPath string `json:"alias_path,omitempty"`
	CultureCode   string `json:"culture,omitempty"`
	ClassName     string `json:"class_name,omitempty"`
}

func (s *DocumentSubscription) family(t ir.TaskType) bool {
	return t.IsDocument()
}

func (s *DocumentSubscription) dimensions() []dimension {
	return []dimension{
		{name: "site", pattern: s.SiteName, fold: true, attr: func(t *ir.Task) string { return t.SiteName }},
		{name: "object_type", pattern: s.ObjectType, attr: (*ir.Task).ObjectTypeName},
		{name: "alias_path", pattern: s.NodeAliasPath, fold: true, attr: func(t *ir.Task) string { return t.NodeAliasPath }},
		{name: "culture", pattern: s.CultureCode, fold: true, attr: func(t *ir.Task) string { return t.CultureCode }},
		{name: "class_name", pattern: s.ClassName, fold: true, attr: func(t *ir.Task) string { return t.ClassName }},
	}
}

// dimension is one pattern of a subscription and the task attribute it
// is compared against.
type dimension struct {
	name    string
	pattern string
	fold    bool
	attr    func(*ir.Task) string
}

// Match is one interested connector and the delivery mode it asked for.
type Match struct {
	ConnectorName string         `json:"connector"`
	ProcessType   ir.ProcessType `json:"process_type"`
}
