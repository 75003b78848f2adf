// Package layout renders grouping settings into the hierarchical form
// description consumed by the settings UI. The widget tree is a closed set of
// variants; each one encodes with a "type" discriminator, and the emission
// order of widgets determines the on-screen field order.
package layout

import (
	"encoding/json"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
)

// Widget is a node of the rendered form tree.
type Widget interface {
	widgetType() string
}

// Option is a selectable dropdown entry. A nil Value marks the placeholder.
type Option struct {
	Title string `json:"title"`
	Value any    `json:"value"`
}

// Dropdown is a single-choice selector bound to a settings field.
type Dropdown struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Values   []Option `json:"values"`
	Setting  string   `json:"setting"`
}

func (Dropdown) widgetType() string { return "dropdown" }

// MarshalJSON adds the type discriminator.
func (w Dropdown) MarshalJSON() ([]byte, error) {
	type alias Dropdown
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{w.widgetType(), alias(w)})
}

// Textbox is a free-text field bound to a settings field.
type Textbox struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Setting  string `json:"setting"`
}

func (Textbox) widgetType() string { return "string" }

// MarshalJSON adds the type discriminator.
func (w Textbox) MarshalJSON() ([]byte, error) {
	type alias Textbox
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{w.widgetType(), alias(w)})
}

// IntegerField is a bounded numeric field. Error carries field-level
// validation text when the entered value falls outside [Min, Max].
type IntegerField struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Setting  string `json:"setting"`
	Error    string `json:"error,omitempty"`
}

func (IntegerField) widgetType() string { return "integer" }

// MarshalJSON adds the type discriminator.
func (w IntegerField) MarshalJSON() ([]byte, error) {
	type alias IntegerField
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{w.widgetType(), alias(w)})
}

// Group nests widgets under a common, optionally collapsable, heading.
type Group struct {
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Collapsable bool     `json:"collapsable"`
	Items       []Widget `json:"items"`
}

func (Group) widgetType() string { return "group" }

// MarshalJSON adds the type discriminator.
func (w Group) MarshalJSON() ([]byte, error) {
	type alias Group
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{w.widgetType(), alias(w)})
}

// Label is a read-only text widget.
type Label struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

func (Label) widgetType() string { return "label" }

// MarshalJSON adds the type discriminator.
func (w Label) MarshalJSON() ([]byte, error) {
	type alias Label
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{w.widgetType(), alias(w)})
}

// Layout is the rendered form: the settings values it was rendered from, the
// widget tree and a form-level validation flag.
type Layout struct {
	Settings preset.GroupingSettings `json:"settings"`
	Widgets  []Widget                `json:"widgets"`
	HasError bool                    `json:"has_error"`
}
