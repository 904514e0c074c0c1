// Package i18n loads the console's message catalogs and negotiates the
// language of each request.
//
// Catalogs are nested JSON objects flattened to dot-separated keys. An
// object whose keys are all CLDR plural categories ("one", "other", ...) is a
// plural entry rather than a nesting level.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

//go:embed locales/*.json
var locales embed.FS

// Fallback is the language every lookup falls back to.
const Fallback = "en"

var pluralForms = map[string]plural.Form{
	"zero":  plural.Zero,
	"one":   plural.One,
	"two":   plural.Two,
	"few":   plural.Few,
	"many":  plural.Many,
	"other": plural.Other,
}

type entry struct {
	text  string
	forms map[plural.Form]string
}

type catalog map[string]entry

// Language is one entry of the language switcher.
type Language struct {
	Code string
	Name string
}

// Bundle holds every loaded catalog.
type Bundle struct {
	catalogs map[string]catalog
	codes    []string
	tags     []language.Tag
	matcher  language.Matcher
}

// Load reads the catalogs compiled into the binary.
func Load() (*Bundle, error) {
	sub, err := fs.Sub(locales, "locales")
	if err != nil {
		return nil, err
	}
	return NewBundle(sub)
}

// NewBundle reads every <code>.json file at the root of fsys. The fallback
// language must be present.
func NewBundle(fsys fs.FS) (*Bundle, error) {
	files, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	b := &Bundle{catalogs: make(map[string]catalog)}
	// The fallback goes first so the matcher prefers it on ties.
	b.codes = append(b.codes, Fallback)
	for _, f := range files {
		code := strings.TrimSuffix(path.Base(f), ".json")
		if _, err := language.Parse(code); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", f, err)
		}
		raw, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, err
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", f, err)
		}
		cat := make(catalog)
		if err := flatten(cat, "", tree); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", f, err)
		}
		b.catalogs[code] = cat
		if code != Fallback {
			b.codes = append(b.codes, code)
		}
	}
	if _, ok := b.catalogs[Fallback]; !ok {
		return nil, fmt.Errorf("missing %s catalog", Fallback)
	}
	for _, c := range b.codes {
		b.tags = append(b.tags, language.MustParse(c))
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func flatten(cat catalog, prefix string, tree map[string]any) error {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case string:
			cat[key] = entry{text: t}
		case map[string]any:
			if forms, ok := pluralEntry(t); ok {
				cat[key] = entry{forms: forms}
				continue
			}
			if err := flatten(cat, key, t); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s: unsupported value %T", key, v)
		}
	}
	return nil
}

func pluralEntry(obj map[string]any) (map[plural.Form]string, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	forms := make(map[plural.Form]string, len(obj))
	for k, v := range obj {
		f, ok := pluralForms[k]
		if !ok {
			return nil, false
		}
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		forms[f] = s
	}
	return forms, true
}

// Languages lists the available languages, fallback first, each named in
// its own language.
func (b *Bundle) Languages() []Language {
	out := make([]Language, 0, len(b.codes))
	for i, c := range b.codes {
		name := display.Self.Name(b.tags[i])
		if name == "" {
			name = c
		}
		out = append(out, Language{Code: c, Name: cases.Title(b.tags[i]).String(name)})
	}
	return out
}

// Supports reports whether a catalog exists for code.
func (b *Bundle) Supports(code string) bool {
	_, ok := b.catalogs[code]
	return ok
}

// Match picks the catalog for a request. An explicit choice (the language
// cookie) wins over the Accept-Language header.
func (b *Bundle) Match(acceptLanguage, choice string) string {
	if b.Supports(choice) {
		return choice
	}
	_, i := language.MatchStrings(b.matcher, acceptLanguage)
	return b.codes[i]
}

// Translator returns the translator for code, or for the fallback language
// when code is unknown.
func (b *Bundle) Translator(code string) *Translator {
	if !b.Supports(code) {
		code = Fallback
	}
	for i, c := range b.codes {
		if c == code {
			return &Translator{b: b, code: code, tag: b.tags[i]}
		}
	}
	return &Translator{b: b, code: Fallback, tag: language.English}
}

// Translator looks up messages in one language.
type Translator struct {
	b    *Bundle
	code string
	tag  language.Tag
}

// Lang returns the language code of the translator.
func (t *Translator) Lang() string { return t.code }

func (t *Translator) lookup(key string) (entry, language.Tag, bool) {
	if e, ok := t.b.catalogs[t.code][key]; ok {
		return e, t.tag, true
	}
	if e, ok := t.b.catalogs[Fallback][key]; ok {
		return e, language.English, true
	}
	return entry{}, t.tag, false
}

// Has reports whether key exists in this language or the fallback.
func (t *Translator) Has(key string) bool {
	_, _, ok := t.lookup(key)
	return ok
}

// T translates key. Params are name/value pairs substituted for {name}
// placeholders. A plural entry yields its singular form. Unknown keys are
// returned unchanged.
func (t *Translator) T(key string, params ...any) string {
	e, _, ok := t.lookup(key)
	if !ok {
		return key
	}
	msg := e.text
	if e.forms != nil {
		msg = pick(e.forms, plural.One)
	}
	return substitute(msg, params)
}

// Plural translates key for a count of n. The count is available to the
// message as {count}.
func (t *Translator) Plural(key string, n int, params ...any) string {
	e, tag, ok := t.lookup(key)
	if !ok {
		return key
	}
	params = append([]any{"count", n}, params...)
	if e.forms == nil {
		return substitute(e.text, params)
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	form := plural.Cardinal.MatchPlural(tag, abs, 0, 0, 0, 0)
	return substitute(pick(e.forms, form), params)
}

func pick(forms map[plural.Form]string, f plural.Form) string {
	if s, ok := forms[f]; ok {
		return s
	}
	if s, ok := forms[plural.Other]; ok {
		return s
	}
	for _, s := range forms {
		return s
	}
	return ""
}

func substitute(msg string, params []any) string {
	if len(params) < 2 || !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, len(params))
	for i := 0; i+1 < len(params); i += 2 {
		name := fmt.Sprint(params[i])
		pairs = append(pairs, "{"+name+"}", value(params[i+1]))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func value(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
