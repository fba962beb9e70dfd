// Package exporter writes projects to a portable JSON document and restores
// them. Media is exported as server references where possible, embedded as
// base64 otherwise, and kept as plain references when neither works.
package exporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/fruitsalade/pagemedia/internal/detect"
)

// DocumentVersion is written to exportMetadata.version.
const DocumentVersion = "2.0"

// ErrInvalidDocument is returned for structurally invalid input.
var ErrInvalidDocument = errors.New("invalid project document")

var codec = sonic.ConfigStd

// Element types that carry a src.
const (
	TypeImage = "image"
	TypeAudio = "audio"
	TypeVideo = "video"
)

// Element is one node of the page tree. Only the fields the pipeline reads
// are typed; any other key of the element object is kept verbatim in Extra.
type Element struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Src             string         `json:"src,omitempty"`
	BackgroundImage string         `json:"backgroundImage,omitempty"`
	BackgroundVideo string         `json:"backgroundVideo,omitempty"`
	BackgroundAudio string         `json:"backgroundAudio,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
	Children        []*Element     `json:"children,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// elementFields is Element without its JSON methods.
type elementFields Element

// typedKeys are the element keys decoded into Element's fields.
var typedKeys = []string{"id", "type", "src", "backgroundImage", "backgroundVideo", "backgroundAudio", "properties", "children"}

// UnmarshalJSON decodes the typed fields and keeps every other key in Extra.
func (e *Element) UnmarshalJSON(data []byte) error {
	var f elementFields
	if err := codec.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := codec.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range typedKeys {
		delete(all, k)
	}
	*e = Element(f)
	e.Extra = nil
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// MarshalJSON writes the typed fields merged with Extra. Typed fields win
// over Extra keys of the same name.
func (e Element) MarshalJSON() ([]byte, error) {
	if len(e.Extra) == 0 {
		return codec.Marshal(elementFields(e))
	}
	out := make(map[string]any, len(e.Extra)+len(typedKeys))
	for k, v := range e.Extra {
		out[k] = v
	}
	out["id"] = e.ID
	out["type"] = e.Type
	for k, v := range map[string]string{
		"src":             e.Src,
		"backgroundImage": e.BackgroundImage,
		"backgroundVideo": e.BackgroundVideo,
		"backgroundAudio": e.BackgroundAudio,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if len(e.Properties) > 0 {
		out["properties"] = e.Properties
	}
	if len(e.Children) > 0 {
		out["children"] = e.Children
	}
	return codec.Marshal(out)
}

// Clone returns a deep copy of the element subtree.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = maps.Clone(e.Properties)
	c.Extra = maps.Clone(e.Extra)
	if e.Children != nil {
		c.Children = make([]*Element, len(e.Children))
		for i, child := range e.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Project is the in-memory page being exported or restored.
type Project struct {
	Elements []*Element `json:"elements"`
}

// Document is the export file.
type Document struct {
	Elements       []*Element           `json:"elements" validate:"required"`
	MediaFiles     map[string]MediaFile `json:"mediaFiles"`
	ExportMetadata ExportMetadata       `json:"exportMetadata"`
}

// ExportMetadata summarizes an export.
type ExportMetadata struct {
	ExportedAt       time.Time `json:"exportedAt"`
	Version          string    `json:"version"`
	ElementCount     int       `json:"elementCount"`
	MediaCount       int       `json:"mediaCount"`
	BackgroundCount  int       `json:"backgroundCount"`
	ServerReferences int       `json:"serverReferences"`
	Embedded         int       `json:"embedded"`
	ReferenceOnly    int       `json:"referenceOnly"`
}

// Tags of the "type" field of a media file entry.
const (
	TagServerReference = "server-reference"
	TagBase64Embedded  = "base64-embedded"
	TagReferenceOnly   = "reference-only"
	TagLegacyBase64    = "legacy-base64" // never written; bare strings on disk
)

// FileExportData is one exported media file. The set of variants is closed:
// *ServerReference, *Base64Embedded, *ReferenceOnly and *LegacyBase64.
type FileExportData interface {
	Tag() string
	sealed()
}

// ServerReference points at a file stored on a media server.
type ServerReference struct {
	BucketPath  string          `json:"bucketPath"`
	ServerURL   string          `json:"serverUrl"`
	OriginalSrc string          `json:"originalSrc"`
	FileType    string          `json:"fileType,omitempty"`
	Metadata    detect.Metadata `json:"metadata"`
}

// Base64Embedded carries the file bytes inline.
type Base64Embedded struct {
	Base64      string `json:"base64"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	Reason      string `json:"reason"`
	OriginalSrc string `json:"originalSrc"`
	Note        string `json:"note,omitempty"`
}

// ReferenceOnly keeps the source string when nothing else was possible.
type ReferenceOnly struct {
	OriginalSrc string `json:"originalSrc"`
	Error       string `json:"error,omitempty"`
	Note        string `json:"note,omitempty"`
}

// LegacyBase64 is a bare base64 (or data URL) string written by older exports.
type LegacyBase64 struct {
	Data string
}

func (*ServerReference) Tag() string { return TagServerReference }
func (*Base64Embedded) Tag() string  { return TagBase64Embedded }
func (*ReferenceOnly) Tag() string   { return TagReferenceOnly }
func (*LegacyBase64) Tag() string    { return TagLegacyBase64 }

func (*ServerReference) sealed() {}
func (*Base64Embedded) sealed()  {}
func (*ReferenceOnly) sealed()   {}
func (*LegacyBase64) sealed()    {}

// MediaFile is the JSON envelope of a FileExportData.
type MediaFile struct {
	Data FileExportData
}

// MarshalJSON writes tagged objects; legacy entries stay bare strings.
func (m MediaFile) MarshalJSON() ([]byte, error) {
	switch v := m.Data.(type) {
	case *ServerReference:
		return codec.Marshal(struct {
			Type string `json:"type"`
			*ServerReference
		}{TagServerReference, v})
	case *Base64Embedded:
		return codec.Marshal(struct {
			Type string `json:"type"`
			*Base64Embedded
		}{TagBase64Embedded, v})
	case *ReferenceOnly:
		return codec.Marshal(struct {
			Type string `json:"type"`
			*ReferenceOnly
		}{TagReferenceOnly, v})
	case *LegacyBase64:
		return codec.Marshal(v.Data)
	default:
		return nil, fmt.Errorf("unknown media file variant %T", m.Data)
	}
}

// UnmarshalJSON accepts tagged objects and legacy bare strings.
func (m *MediaFile) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := codec.Unmarshal(data, &s); err != nil {
			return err
		}
		m.Data = &LegacyBase64{Data: s}
		return nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := codec.Unmarshal(data, &probe); err != nil {
		return err
	}

	var v FileExportData
	switch probe.Type {
	case TagServerReference:
		v = &ServerReference{}
	case TagBase64Embedded:
		v = &Base64Embedded{}
	case TagReferenceOnly:
		v = &ReferenceOnly{}
	default:
		return fmt.Errorf("unknown media file type %q", probe.Type)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return err
	}
	m.Data = v
	return nil
}

// Encode writes doc as indented JSON.
func Encode(doc *Document) ([]byte, error) {
	return codec.MarshalIndent(doc, "", "  ")
}

// Decode parses and validates a document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeProject parses a project file.
func DecodeProject(data []byte) (*Project, error) {
	var p Project
	if err := codec.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if p.Elements == nil {
		return nil, fmt.Errorf("%w: elements are required", ErrInvalidDocument)
	}
	return &p, nil
}

// EncodeProject writes a project as indented JSON.
func EncodeProject(p *Project) ([]byte, error) {
	return codec.MarshalIndent(p, "", "  ")
}

// mediaSlot is one media-bearing property of an element.
type mediaSlot struct {
	key        string
	kind       string
	src        string
	background bool
	set        func(*Element, string)
}

// slots lists the media properties of el in a fixed order.
func slots(el *Element) []mediaSlot {
	var out []mediaSlot
	switch el.Type {
	case TypeImage, TypeAudio, TypeVideo:
		if el.Src != "" {
			out = append(out, mediaSlot{
				key:  el.Type + "_" + el.ID,
				kind: el.Type,
				src:  el.Src,
				set:  func(e *Element, u string) { e.Src = u },
			})
		}
	}
	if el.BackgroundImage != "" {
		out = append(out, backgroundSlot("bg_image_"+el.ID, TypeImage, el.BackgroundImage,
			func(e *Element, u string) { e.BackgroundImage = u }))
	}
	if el.BackgroundVideo != "" {
		out = append(out, backgroundSlot("bg_video_"+el.ID, TypeVideo, el.BackgroundVideo,
			func(e *Element, u string) { e.BackgroundVideo = u }))
	}
	if el.BackgroundAudio != "" {
		out = append(out, backgroundSlot("bg_audio_"+el.ID, TypeAudio, el.BackgroundAudio,
			func(e *Element, u string) { e.BackgroundAudio = u }))
	}
	return out
}

// backgroundSlot accepts both bare URLs and CSS url(...) values; restored
// URLs keep the shape of the original value.
func backgroundSlot(key, kind, raw string, set func(*Element, string)) mediaSlot {
	src, wrapped := unwrapCSSURL(raw)
	slot := mediaSlot{key: key, kind: kind, src: src, background: true, set: set}
	if wrapped {
		slot.set = func(e *Element, u string) { set(e, `url("`+u+`")`) }
	}
	return slot
}

func unwrapCSSURL(v string) (string, bool) {
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "url(") || !strings.HasSuffix(s, ")") {
		return v, false
	}
	s = strings.TrimSpace(s[len("url(") : len(s)-1])
	return strings.Trim(s, `"'`), true
}

// walk visits elements depth first, children after their parent.
func walk(elements []*Element, fn func(*Element)) {
	for _, el := range elements {
		if el == nil {
			continue
		}
		fn(el)
		walk(el.Children, fn)
	}
}
